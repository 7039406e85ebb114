package toolbroker

import _ "embed"

// Version is the release of the broker, read from the VERSION file.
//
//go:embed VERSION
var Version string
