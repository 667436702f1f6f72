// Package flag holds the flag values shared across the CLI commands.
package flag

// Set contains the values of the persistent CLI flags.
type Set struct {
	DBPath string
	Json   bool
}

// Value is the set of parsed flag values.
var Value Set

// Flag name constants.
const (
	DBPath      = "db"
	DBPathShort = "d"
	Json        = "json"
	JsonShort   = "j"
)
