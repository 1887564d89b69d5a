// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// Cadenza is the canonical application identifier used for filesystem paths, CLI branding and the MPRIS bus name.
	Cadenza = "cadenza"

	// Version is the current application semantic version string.
	Version = "0.1.0"

	// MprisBusName is the well-known D-Bus name claimed while media controls are active.
	MprisBusName = "org.mpris.MediaPlayer2." + Cadenza
)
