package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/samber/mo"
	"github.com/spf13/viper"

	"github.com/cadenza-cli/cadenza/key"
	"github.com/cadenza-cli/cadenza/log"
	"github.com/cadenza-cli/cadenza/queue"
)

// ErrDisconnected means the action channel closed: the host is gone and the
// player exits quietly.
var ErrDisconnected = errors.New("disconnected from host")

// idleBackoff is how long the run loop sleeps when nothing is playing and
// nothing arrived, to avoid spinning a core. Command latency stays well
// under human-perceptible.
const idleBackoff = 2 * time.Millisecond

// Player owns the decode loop for the current track and reacts to actions
// from the host and results from the preloader. A nil state means stopped.
type Player struct {
	state         *playerState
	inbox         <-chan AudioAction
	toUI          chan<- AudioMessage
	controls      MediaControls
	toPreloader   chan string
	fromPreloader <-chan PreloaderEffect

	openPipeline func(path string) (*Pipeline, error)
	openOutput   OpenOutput
}

// playerState is everything about the song being played. playing=false is
// paused.
type playerState struct {
	demuxer   Demuxer
	decoder   Decoder
	output    Output
	playing   bool
	seekTS    mo.Option[uint64]
	trackInfo TrackInfo
	queue     queue.Queue[QueuedSong]
	timestamp uint64
	// pipeline opened ahead of time for the next song in the queue
	preloaded *Loaded
}

// Spawn starts the player and its preloader. It returns a channel that
// closes when the player goroutine exits. Closing the action channel is the
// clean shutdown path. toUI should be buffered and drained until done
// closes: routine progress updates are dropped when it is full, but stop
// and seek-complete messages block until the host takes them.
func Spawn(inbox <-chan AudioAction, toUI chan<- AudioMessage, controls MediaControls) <-chan struct{} {
	toPreloader := make(chan string, 1)
	fromPreloader := make(chan PreloaderEffect, 4)

	SpawnPreloader(toPreloader, fromPreloader)

	player := &Player{
		state:         nil,
		inbox:         inbox,
		toUI:          toUI,
		controls:      controls,
		toPreloader:   toPreloader,
		fromPreloader: fromPreloader,
		openPipeline:  Open,
		openOutput:    openOtoOutput,
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(toPreloader)

		if err := player.runLoop(); err != nil {
			if errors.Is(err, ErrDisconnected) {
				// normal during shutdown, before or after the host exists
				return
			}

			log.Errorf("unrecovered audio error: %v", err)

			select {
			case toUI <- AudioDied{}:
			default:
			}
		}
	}()

	return done
}

func (p *Player) runLoop() error {
	for {
		var effect PreloaderEffect
		select {
		case eff, ok := <-p.fromPreloader:
			if !ok {
				// the player keeps working without the preloader, it just
				// opens every track synchronously
				p.fromPreloader = nil
			} else {
				effect = eff
			}
		default:
		}

		switch effect := effect.(type) {
		case Loaded:
			log.Tracef("got preloaded pipeline: %s", effect.Path)
			if p.state != nil {
				if p.state.preloaded != nil {
					p.state.preloaded.Pipeline.Close()
				}
				loaded := effect
				p.state.preloaded = &loaded
			} else {
				effect.Pipeline.Close()
			}
		case PreloaderDied:
			log.Error("preloader died; tracks will open synchronously")
		}

		var action AudioAction
		select {
		case a, ok := <-p.inbox:
			if !ok {
				p.teardown()
				return ErrDisconnected
			}
			action = a
		default:
		}

		wasPlaying := p.state != nil

		effects, err := p.step(p.state, action)
		if err != nil {
			p.teardown()
			return fmt.Errorf("error during player step: %w", err)
		}

		if effects.message != nil {
			p.publish(effects.message)
		}

		if metadata, ok := effects.metadata.Get(); ok {
			p.controls.SetMetadata(metadata)
		}

		if playback, ok := effects.playback.Get(); ok {
			p.controls.SetPlayback(playback)
		}

		if effects.state == nil && wasPlaying {
			p.controls.Deinit()
		}

		if path, ok := effects.preload.Get(); ok && p.fromPreloader != nil {
			p.requestPreload(path)
		}

		p.state = effects.state

		if action == nil && effect == nil && (p.state == nil || !p.state.playing) {
			time.Sleep(idleBackoff)
		}
	}
}

// publish hands a message to the host. Progress updates are droppable, the
// host only needs the latest one. A stop or a seek completion is the host's
// cue to act, so those block until received.
func (p *Player) publish(message AudioMessage) {
	mustArrive := false
	switch message := message.(type) {
	case SeekComplete:
		mustArrive = true
	case DisplayUpdate:
		mustArrive = message.Display.IsAbsent()
	}

	if mustArrive {
		p.toUI <- message
		return
	}

	select {
	case p.toUI <- message:
	default:
	}
}

// requestPreload hands a path to the preloader. A request still queued when
// a new one arrives targets a song that is no longer next, so it is
// replaced instead of dropping the new one.
func (p *Player) requestPreload(path string) {
	select {
	case p.toPreloader <- path:
	default:
		select {
		case <-p.toPreloader:
		default:
		}

		// the buffer has room now; this is the only sender
		p.toPreloader <- path
	}
}

// teardown releases the track and the media controls on the way out.
func (p *Player) teardown() {
	if p.state != nil {
		p.state.close()
		p.state = nil
		p.controls.Deinit()
	}
}

// step is the transition table: one state and at most one action in, the new
// state and the side effects out.
func (p *Player) step(state *playerState, action AudioAction) (audioEffects, error) {
	switch action := action.(type) {
	case PlayQueue:
		if state != nil {
			state.close()
		}

		newState, err := p.playQueue(action.Queue)
		if err != nil {
			if viper.GetBool(key.PlayerRecoverBadFiles) {
				log.Errorf("skipping unplayable file: %v", err)
				return publishStop(), nil
			}
			return audioEffects{}, err
		}

		effects := publishDisplayUpdate(newState)
		effects.preloadNext()

		return effects, nil

	case Pause:
		if state != nil && state.playing {
			state.playing = false
			return publishDisplayUpdate(state), nil
		}
		return noEffects(state), nil

	case PlayPaused:
		if state != nil && !state.playing {
			state.playing = true
			return publishDisplayUpdate(state), nil
		}
		return noEffects(state), nil

	case Toggle:
		if state != nil {
			state.playing = !state.playing
			return publishDisplayUpdate(state), nil
		}
		return noEffects(nil), nil

	case Forward:
		if state == nil {
			return noEffects(nil), nil
		}

		effects, err := p.forward(state)
		if err != nil {
			return audioEffects{}, err
		}
		effects.preloadNext()

		return effects, nil

	case Back:
		if state == nil {
			return noEffects(nil), nil
		}

		effects, err := p.back(state)
		if err != nil {
			return audioEffects{}, err
		}
		effects.preloadNext()

		return effects, nil

	case Seek:
		if state == nil {
			return noEffects(nil), nil
		}

		times, ok := state.trackInfo.ProgressTimes(state.timestamp).Get()
		if !ok {
			log.Errorf("missing track time info: %+v", state.trackInfo)
			return publishSeekComplete(state), nil
		}

		proportion := float64(action.Proportion)
		seekSeconds := float64(times.Total.Seconds) * proportion
		seekSeconds += times.Total.Frac * proportion

		state.seekTo(seekSeconds)

		return publishSeekComplete(state), nil

	default:
		if state != nil && state.playing {
			before := state.queue.Current.ID

			effects, err := p.continuePlaying(state)
			if err != nil {
				return audioEffects{}, err
			}

			// starting a new song means there is a new one after it to
			// preload
			if effects.state != nil && effects.state.queue.Current.ID != before {
				effects.preloadNext()
			}

			return effects, nil
		}

		return noEffects(state), nil
	}
}

// playQueue opens the queue's current song from scratch.
func (p *Player) playQueue(q queue.Queue[QueuedSong]) (*playerState, error) {
	pipeline, err := p.openPipeline(q.Current.Path)
	if err != nil {
		return nil, err
	}

	return &playerState{
		demuxer:   pipeline.Demuxer,
		decoder:   pipeline.Decoder,
		trackInfo: pipeline.TrackInfo,
		playing:   true,
		queue:     q,
	}, nil
}

// playPreloaded reuses a pipeline the preloader already opened.
func playPreloaded(q queue.Queue[QueuedSong], loaded *Loaded) *playerState {
	return &playerState{
		demuxer:   loaded.Pipeline.Demuxer,
		decoder:   loaded.Pipeline.Decoder,
		trackInfo: loaded.Pipeline.TrackInfo,
		playing:   true,
		queue:     q,
	}
}

// jumpTo moves playback to the current song of newQueue, using the preloaded
// pipeline when its path matches and opening from scratch otherwise.
func (p *Player) jumpTo(state *playerState, newQueue queue.Queue[QueuedSong]) (*playerState, error) {
	var newState *playerState

	if state.preloaded != nil && state.preloaded.Path == newQueue.Current.Path {
		log.Trace("hit preload")
		newState = playPreloaded(newQueue, state.preloaded)
		state.preloaded = nil
	} else {
		log.Info("missed preload")
		opened, err := p.playQueue(newQueue)
		if err != nil {
			return nil, err
		}
		newState = opened
	}

	newState.playing = state.playing
	state.close()

	return newState, nil
}

func (p *Player) forward(state *playerState) (audioEffects, error) {
	newQueue, ok := state.queue.TryForward()
	if !ok {
		if state.output != nil {
			state.output.Flush()
		}
		state.close()

		return publishStop(), nil
	}

	newState, err := p.jumpTo(state, newQueue)
	if err != nil {
		return audioEffects{}, err
	}

	return publishDisplayUpdate(newState), nil
}

func (p *Player) back(state *playerState) (audioEffects, error) {
	threshold := int64(viper.GetInt(key.PlayerBackThreshold))

	pastThreshold := false
	if times, ok := state.trackInfo.ProgressTimes(state.timestamp).Get(); ok {
		pastThreshold = times.Elapsed.Seconds >= threshold
	}

	if !pastThreshold {
		if newQueue, ok := state.queue.TryBack(); ok {
			newState, err := p.jumpTo(state, newQueue)
			if err != nil {
				return audioEffects{}, err
			}

			return publishDisplayUpdate(newState), nil
		}
	}

	state.seekTo(0)
	state.timestamp = 0

	return publishDisplayUpdate(state), nil
}

// seekTo asks the container for a position in seconds and records where it
// actually landed. Decoded packets before that tick are discarded until
// playback catches up. A failed seek is recovered by just playing on.
func (s *playerState) seekTo(seconds float64) {
	requiredTS, err := s.demuxer.Seek(seconds)
	if err != nil {
		log.Errorf("seek error: %v", err)
		s.seekTS = mo.None[uint64]()
		return
	}

	s.seekTS = mo.Some(requiredTS)
}

// continuePlaying advances playback by one packet.
func (p *Player) continuePlaying(state *playerState) (audioEffects, error) {
	packet, err := state.demuxer.NextPacket()
	if err != nil {
		// EOF is the normal end of the track, not an error
		if errors.Is(err, io.EOF) {
			return p.forward(state)
		}
		return audioEffects{}, fmt.Errorf("reading next packet: %w", err)
	}

	decoded, err := state.decoder.Decode(packet)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			// not fatal; skip the packet and try the next one
			log.Warnf("decode error: %v", err)
			return noEffects(state), nil
		}
		return audioEffects{}, fmt.Errorf("decoding packet: %w", err)
	}

	// the sink is opened from the first decoded buffer, which is the
	// earliest the sample spec is known
	if state.output == nil {
		output, err := p.openOutput(decoded.Spec, decoded.Capacity)
		if err != nil {
			return audioEffects{}, err
		}
		state.output = output
	}

	// while a seek is in flight, keep decoding but drop everything before
	// the target tick
	state.timestamp = packet.Timestamp
	if seekTS, ok := state.seekTS.Get(); ok {
		if packet.Timestamp < seekTS {
			return noEffects(state), nil
		}
		// seek complete; back to publishing the real timestamp
		state.seekTS = mo.None[uint64]()
	}

	if err := state.output.Write(decoded); err != nil {
		return audioEffects{}, fmt.Errorf("writing audio: %w", err)
	}

	return publishDisplayUpdate(state), nil
}

// optimisticTimestamp publishes the tick we are seeking to instead of the
// one being discarded, so the display never flashes the old position.
// Relies on continuePlaying clearing seekTS when the seek completes.
func (s *playerState) optimisticTimestamp() uint64 {
	if seekTS, ok := s.seekTS.Get(); ok {
		return seekTS
	}
	return s.timestamp
}

// upNext is the song a forward move would land on.
func (s *playerState) upNext() (QueuedSong, bool) {
	if len(s.queue.Next) == 0 {
		return QueuedSong{}, false
	}
	return s.queue.Next[0], true
}

// close releases the pipeline, the output sink and any preloaded pipeline.
func (s *playerState) close() {
	if s.demuxer != nil {
		s.demuxer.Close()
		s.demuxer = nil
	}
	if s.output != nil {
		s.output.Close()
		s.output = nil
	}
	if s.preloaded != nil {
		s.preloaded.Pipeline.Close()
		s.preloaded = nil
	}
}

func (s *playerState) display() PlayerDisplay {
	times, ok := s.trackInfo.ProgressTimes(s.optimisticTimestamp()).Get()
	if !ok {
		log.Error("missing track time info")
		times = ZeroProgress
	}

	return PlayerDisplay{
		SongID:  s.queue.Current.ID,
		Playing: s.playing,
		Times:   times,
	}
}
