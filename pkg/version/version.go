package version

// version is populated from build info when available.
var version = "unknown"

// Get returns the stationstore module version.
func Get() string {
	return version
}
