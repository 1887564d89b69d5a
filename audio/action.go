package audio

import (
	"time"

	"github.com/samber/mo"

	"github.com/cadenza-cli/cadenza/queue"
)

// SongID identifies a song across the queue, the display and the library.
type SongID uint64

// QueuedSong is one entry of the playback queue. Everything beyond the path
// is presentation data for the display and the media controls.
type QueuedSong struct {
	ID         SongID
	Path       string
	Title      mo.Option[string]
	Artist     mo.Option[string]
	AlbumTitle mo.Option[string]
	ResizedArt mo.Option[string]
	Duration   mo.Option[time.Duration]
}

// AudioAction is a command sent to the player goroutine.
type AudioAction interface {
	audioAction()
}

// PlayQueue begins playing the queue's current song immediately and
// continues through the rest of the queue as songs end.
type PlayQueue struct {
	Queue queue.Queue[QueuedSong]
}

// Pause pauses the currently playing song, if any.
type Pause struct{}

// PlayPaused resumes the currently paused song, if any.
type PlayPaused struct{}

// Toggle swaps between play and pause based on the current state.
type Toggle struct{}

// Seek moves within the current song. Proportion is expected in 0.0..=1.0.
type Seek struct {
	Proportion float32
}

// Forward plays the next track if there is one, otherwise stops.
type Forward struct{}

// Back seeks to the beginning of the current song, or moves back a track in
// the queue when the song just started.
type Back struct{}

func (PlayQueue) audioAction()  {}
func (Pause) audioAction()      {}
func (PlayPaused) audioAction() {}
func (Toggle) audioAction()     {}
func (Seek) audioAction()       {}
func (Forward) audioAction()    {}
func (Back) audioAction()       {}

// AudioMessage is a notification from the player goroutine to its host.
type AudioMessage interface {
	audioMessage()
}

// DisplayUpdate reports a change that affects what the host shows.
// An absent display means the player stopped.
type DisplayUpdate struct {
	Display mo.Option[PlayerDisplay]
}

// SeekComplete is the first update after a seek request.
type SeekComplete struct {
	Display PlayerDisplay
}

// AudioDied reports that the player goroutine exited on an error.
type AudioDied struct{}

func (DisplayUpdate) audioMessage() {}
func (SeekComplete) audioMessage()  {}
func (AudioDied) audioMessage()     {}

// PlayerDisplay is the host-facing snapshot of the playing track.
type PlayerDisplay struct {
	SongID  SongID
	Playing bool
	Times   ProgressTimes
}
