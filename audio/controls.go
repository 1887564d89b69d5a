package audio

import (
	"time"

	"github.com/samber/mo"
)

// MediaControls is the OS media-key surface the player publishes to.
// Implementations are expected to initialize lazily and to treat every
// method as best effort; the player never reacts to their failures.
type MediaControls interface {
	SetMetadata(metadata ControlsMetadata)
	SetPlayback(playback Playback)
	Deinit()
}

// ControlsMetadata describes the current track for the media controls.
type ControlsMetadata struct {
	Title    mo.Option[string]
	Album    mo.Option[string]
	Artist   mo.Option[string]
	CoverURL mo.Option[string]
	Duration mo.Option[time.Duration]
}

// Playback describes the playing/paused state and the position within the
// track, when known.
type Playback struct {
	Playing  bool
	Position mo.Option[time.Duration]
}

// NoopControls discards everything. It backs tests and platforms without a
// media-controls service.
type NoopControls struct{}

func (NoopControls) SetMetadata(ControlsMetadata) {}
func (NoopControls) SetPlayback(Playback)         {}
func (NoopControls) Deinit()                      {}
