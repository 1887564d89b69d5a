// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Playback Engine - these keys govern the audio player's behavior.
const (
	PlayerRecoverBadFiles = "player.recover_bad_files"
	PlayerBackThreshold   = "player.back_threshold_seconds"
)

// Library Catalog - these keys configure track discovery and album art handling.
const (
	LibraryRoots     = "library.roots"
	LibraryCoverSize = "library.cover_size"
)

// Playback History - these keys configure persistence of the last played queue.
const (
	HistorySaveOnPlay = "history.save_on_play"
)

// Media Controls - these keys manage the OS media key integration.
const (
	MprisEnable = "mpris.enable"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these settings govern command-line behavior.
const (
	CliColored = "cli.colored"
)
