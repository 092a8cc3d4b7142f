package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION.txt
var raw string

// VERSION is the release version reported by the keywords command.
var VERSION = strings.TrimSpace(raw)
