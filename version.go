package stationstore

import (
	"github.com/citygrid/stationstore/pkg/version"
)

// Version is the current stationstore client library version.
var Version string

func init() {
	Version = version.Get()
}
