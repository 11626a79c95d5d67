package units

const (
	KILOBYTE = 1024
	MEGABYTE = 1024 * KILOBYTE
	GIGABYTE = 1024 * MEGABYTE
)
