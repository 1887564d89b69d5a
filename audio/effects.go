package audio

import (
	"time"

	"github.com/samber/mo"
)

// audioEffects is everything one step wants done: the new player state
// (required; nil = stopped), plus the optional message, media-controls
// publications and preload request.
type audioEffects struct {
	state    *playerState
	message  AudioMessage
	metadata mo.Option[ControlsMetadata]
	playback mo.Option[Playback]
	preload  mo.Option[string]
}

// noEffects preserves the player state, doing nothing else.
func noEffects(state *playerState) audioEffects {
	return audioEffects{state: state}
}

// preloadNext adds a preload request for the next track if there is one.
func (e *audioEffects) preloadNext() {
	if e.state == nil {
		return
	}

	if upNext, ok := e.state.upNext(); ok {
		e.preload = mo.Some(upNext.Path)
	}
}

func publishDisplayUpdate(state *playerState) audioEffects {
	display, metadata, playback := preparePublish(state)

	return audioEffects{
		state:    state,
		message:  DisplayUpdate{Display: mo.Some(display)},
		metadata: mo.Some(metadata),
		playback: mo.Some(playback),
	}
}

func publishSeekComplete(state *playerState) audioEffects {
	display, metadata, playback := preparePublish(state)

	return audioEffects{
		state:    state,
		message:  SeekComplete{Display: display},
		metadata: mo.Some(metadata),
		playback: mo.Some(playback),
	}
}

func publishStop() audioEffects {
	return audioEffects{
		state:   nil,
		message: DisplayUpdate{Display: mo.None[PlayerDisplay]()},
	}
}

func preparePublish(state *playerState) (PlayerDisplay, ControlsMetadata, Playback) {
	current := state.queue.Current

	coverURL := mo.None[string]()
	if art, ok := current.ResizedArt.Get(); ok {
		coverURL = mo.Some("file://" + art)
	}

	metadata := ControlsMetadata{
		Title:    current.Title,
		Album:    current.AlbumTitle,
		Artist:   current.Artist,
		CoverURL: coverURL,
		Duration: current.Duration,
	}

	position := mo.None[time.Duration]()
	if times, ok := state.trackInfo.ProgressTimes(state.optimisticTimestamp()).Get(); ok {
		position = mo.Some(time.Duration(times.Elapsed.Seconds) * time.Second)
	}

	playback := Playback{
		Playing:  state.playing,
		Position: position,
	}

	return state.display(), metadata, playback
}
