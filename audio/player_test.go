package audio

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"

	"github.com/cadenza-cli/cadenza/key"
	"github.com/cadenza-cli/cadenza/queue"
)

func init() {
	viper.SetDefault(key.PlayerRecoverBadFiles, false)
	viper.SetDefault(key.PlayerBackThreshold, 2)
}

type fakeDemuxer struct {
	packets   []*Packet
	packetErr error
	seekTo    []float64
	seekTS    uint64
	seekErr   error
	closed    bool
}

func (d *fakeDemuxer) Streams() []StreamInfo { return []StreamInfo{{ID: 0, Codec: "fake"}} }

func (d *fakeDemuxer) NextPacket() (*Packet, error) {
	if d.packetErr != nil {
		return nil, d.packetErr
	}
	if len(d.packets) == 0 {
		return nil, io.EOF
	}
	packet := d.packets[0]
	d.packets = d.packets[1:]
	return packet, nil
}

func (d *fakeDemuxer) Seek(seconds float64) (uint64, error) {
	d.seekTo = append(d.seekTo, seconds)
	if d.seekErr != nil {
		return 0, d.seekErr
	}
	return d.seekTS, nil
}

func (d *fakeDemuxer) Close() error {
	d.closed = true
	return nil
}

type fakeDecoder struct {
	err error
}

func (d *fakeDecoder) Decode(packet *Packet) (*PCMBuffer, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &PCMBuffer{
		Spec:     packet.Spec,
		Capacity: packetFrames,
		Data:     make([]byte, len(packet.Frames)*4),
	}, nil
}

type fakeOutput struct {
	writes  int
	flushes int
	closed  bool
}

func (o *fakeOutput) Write(*PCMBuffer) error { o.writes++; return nil }
func (o *fakeOutput) Flush()                 { o.flushes++ }
func (o *fakeOutput) Close()                 { o.closed = true }

// testPlayer builds a player whose pipelines come from the given map and
// whose outputs are fakes.
func testPlayer(pipelines map[string]*Pipeline) (*Player, *fakeOutput) {
	output := &fakeOutput{}

	player := &Player{
		openPipeline: func(path string) (*Pipeline, error) {
			pipeline, ok := pipelines[path]
			if !ok {
				return nil, &TrackError{Path: path, Stage: "open", Err: errors.New("no such file")}
			}
			return pipeline, nil
		},
		openOutput: func(SampleSpec, int) (Output, error) {
			return output, nil
		},
	}

	return player, output
}

func song(id SongID, path string) QueuedSong {
	return QueuedSong{ID: id, Path: path, Title: mo.Some(fmt.Sprintf("song %d", id))}
}

func fakePipeline(timestamps ...uint64) (*Pipeline, *fakeDemuxer) {
	demuxer := &fakeDemuxer{seekTS: 0}
	for _, ts := range timestamps {
		demuxer.packets = append(demuxer.packets, &Packet{
			Timestamp: ts,
			Spec:      SampleSpec{Rate: 10, Channels: 2},
			Frames:    make([][2]float64, 10),
		})
	}

	return &Pipeline{
		Demuxer: demuxer,
		Decoder: &fakeDecoder{},
		TrackInfo: TrackInfo{
			TimeBase: mo.Some(TimeBase{Num: 1, Den: 10}),
			Duration: mo.Some[uint64](100),
		},
	}, demuxer
}

func playingState(p *Player, q queue.Queue[QueuedSong], pipeline *Pipeline) *playerState {
	return &playerState{
		demuxer:   pipeline.Demuxer,
		decoder:   pipeline.Decoder,
		trackInfo: pipeline.TrackInfo,
		playing:   true,
		queue:     q,
	}
}

func TestStepPlayQueue(t *testing.T) {
	Convey("PlayQueue", t, func() {
		pipeline, _ := fakePipeline(0)
		player, _ := testPlayer(map[string]*Pipeline{"/a": pipeline})
		q := queue.New(song(1, "/a"), song(2, "/b"))

		Convey("starts playing the current song and preloads the next", func() {
			effects, err := player.step(nil, PlayQueue{Queue: q})
			So(err, ShouldBeNil)

			So(effects.state, ShouldNotBeNil)
			So(effects.state.playing, ShouldBeTrue)
			So(effects.state.timestamp, ShouldEqual, 0)
			So(effects.preload.MustGet(), ShouldEqual, "/b")

			update, ok := effects.message.(DisplayUpdate)
			So(ok, ShouldBeTrue)
			So(update.Display.MustGet().SongID, ShouldEqual, SongID(1))
			So(update.Display.MustGet().Playing, ShouldBeTrue)

			So(effects.metadata.MustGet().Title.MustGet(), ShouldEqual, "song 1")
			So(effects.playback.MustGet().Playing, ShouldBeTrue)
		})

		Convey("an unplayable file is fatal by default", func() {
			bad := queue.New(song(9, "/missing"))

			_, err := player.step(nil, PlayQueue{Queue: bad})
			So(err, ShouldNotBeNil)

			var trackErr *TrackError
			So(errors.As(err, &trackErr), ShouldBeTrue)
		})

		Convey("an unplayable file stops the player when recovery is on", func() {
			viper.Set(key.PlayerRecoverBadFiles, true)
			defer viper.Set(key.PlayerRecoverBadFiles, false)

			bad := queue.New(song(9, "/missing"))

			effects, err := player.step(nil, PlayQueue{Queue: bad})
			So(err, ShouldBeNil)
			So(effects.state, ShouldBeNil)

			update, ok := effects.message.(DisplayUpdate)
			So(ok, ShouldBeTrue)
			So(update.Display.IsAbsent(), ShouldBeTrue)
		})
	})
}

func TestStepPauseResume(t *testing.T) {
	Convey("Pause, PlayPaused and Toggle", t, func() {
		pipeline, _ := fakePipeline(0)
		player, _ := testPlayer(nil)
		state := playingState(player, queue.New(song(1, "/a")), pipeline)

		Convey("Pause while playing pauses and publishes", func() {
			effects, err := player.step(state, Pause{})
			So(err, ShouldBeNil)
			So(effects.state.playing, ShouldBeFalse)
			So(effects.message, ShouldNotBeNil)
			So(effects.playback.MustGet().Playing, ShouldBeFalse)
		})

		Convey("Pause while paused does nothing", func() {
			state.playing = false
			effects, err := player.step(state, Pause{})
			So(err, ShouldBeNil)
			So(effects.message, ShouldBeNil)
		})

		Convey("PlayPaused resumes only a paused song", func() {
			state.playing = false
			effects, err := player.step(state, PlayPaused{})
			So(err, ShouldBeNil)
			So(effects.state.playing, ShouldBeTrue)
			So(effects.message, ShouldNotBeNil)

			again, err := player.step(effects.state, PlayPaused{})
			So(err, ShouldBeNil)
			So(again.message, ShouldBeNil)
		})

		Convey("Toggle flips the flag", func() {
			effects, err := player.step(state, Toggle{})
			So(err, ShouldBeNil)
			So(effects.state.playing, ShouldBeFalse)
		})

		Convey("everything is a no-op when stopped", func() {
			for _, action := range []AudioAction{Pause{}, PlayPaused{}, Toggle{}, Forward{}, Back{}, Seek{Proportion: 0.5}} {
				effects, err := player.step(nil, action)
				So(err, ShouldBeNil)
				So(effects.state, ShouldBeNil)
				So(effects.message, ShouldBeNil)
			}
		})
	})
}

func TestStepContinuePlaying(t *testing.T) {
	Convey("Advancing playback with no action", t, func() {
		Convey("decodes one packet, opens the output lazily and publishes", func() {
			pipeline, _ := fakePipeline(0, 10)
			player, output := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), pipeline)

			effects, err := player.step(state, nil)
			So(err, ShouldBeNil)
			So(effects.state.output, ShouldNotBeNil)
			So(output.writes, ShouldEqual, 1)
			So(effects.state.timestamp, ShouldEqual, 0)

			effects, err = player.step(effects.state, nil)
			So(err, ShouldBeNil)
			So(output.writes, ShouldEqual, 2)
			So(effects.state.timestamp, ShouldEqual, 10)
		})

		Convey("a paused player does not decode", func() {
			pipeline, demuxer := fakePipeline(0)
			player, output := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), pipeline)
			state.playing = false

			effects, err := player.step(state, nil)
			So(err, ShouldBeNil)
			So(effects.message, ShouldBeNil)
			So(output.writes, ShouldEqual, 0)
			So(len(demuxer.packets), ShouldEqual, 1)
		})

		Convey("a recoverable decode error skips the packet", func() {
			pipeline, _ := fakePipeline(0)
			pipeline.Decoder = &fakeDecoder{err: &DecodeError{Err: errors.New("bad frame")}}
			player, output := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), pipeline)

			effects, err := player.step(state, nil)
			So(err, ShouldBeNil)
			So(effects.state, ShouldEqual, state)
			So(effects.message, ShouldBeNil)
			So(output.writes, ShouldEqual, 0)
		})

		Convey("any other decode failure is fatal", func() {
			pipeline, _ := fakePipeline(0)
			pipeline.Decoder = &fakeDecoder{err: errors.New("device exploded")}
			player, _ := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), pipeline)

			_, err := player.step(state, nil)
			So(err, ShouldNotBeNil)
		})

		Convey("EOF with an empty queue flushes and stops", func() {
			pipeline, demuxer := fakePipeline()
			player, output := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), pipeline)
			state.output = output

			effects, err := player.step(state, nil)
			So(err, ShouldBeNil)
			So(effects.state, ShouldBeNil)
			So(output.flushes, ShouldEqual, 1)
			So(output.closed, ShouldBeTrue)
			So(demuxer.closed, ShouldBeTrue)

			update, ok := effects.message.(DisplayUpdate)
			So(ok, ShouldBeTrue)
			So(update.Display.IsAbsent(), ShouldBeTrue)
		})

		Convey("EOF with a next song moves forward and asks to preload", func() {
			current, _ := fakePipeline()
			next, _ := fakePipeline(0)
			player, _ := testPlayer(map[string]*Pipeline{"/b": next})
			q := queue.New(song(1, "/a"), song(2, "/b"), song(3, "/c"))
			state := playingState(player, q, current)

			effects, err := player.step(state, nil)
			So(err, ShouldBeNil)
			So(effects.state, ShouldNotBeNil)
			So(effects.state.queue.Current.ID, ShouldEqual, SongID(2))
			So(effects.preload.MustGet(), ShouldEqual, "/c")
		})
	})
}

func TestStepForwardBack(t *testing.T) {
	Convey("Forward", t, func() {
		Convey("uses the preloaded pipeline when the path matches", func() {
			current, currentDemuxer := fakePipeline(0)
			preloaded, _ := fakePipeline(0)
			player, _ := testPlayer(nil) // a miss would fail loudly

			q := queue.New(song(1, "/a"), song(2, "/b"))
			state := playingState(player, q, current)
			state.preloaded = &Loaded{Path: "/b", Pipeline: preloaded}

			oldOutput := &fakeOutput{}
			state.output = oldOutput

			effects, err := player.step(state, Forward{})
			So(err, ShouldBeNil)
			So(effects.state.queue.Current.ID, ShouldEqual, SongID(2))
			So(effects.state.demuxer, ShouldEqual, preloaded.Demuxer)
			So(currentDemuxer.closed, ShouldBeTrue)

			Convey("and releases the old track's sink", func() {
				So(oldOutput.closed, ShouldBeTrue)
				So(effects.state.output, ShouldBeNil)
			})
		})

		Convey("opens from scratch when the preloaded path does not match", func() {
			current, _ := fakePipeline(0)
			stale, staleDemuxer := fakePipeline(0)
			fresh, _ := fakePipeline(0)
			player, _ := testPlayer(map[string]*Pipeline{"/b": fresh})

			q := queue.New(song(1, "/a"), song(2, "/b"))
			state := playingState(player, q, current)
			state.preloaded = &Loaded{Path: "/z", Pipeline: stale}

			effects, err := player.step(state, Forward{})
			So(err, ShouldBeNil)
			So(effects.state.demuxer, ShouldEqual, fresh.Demuxer)
			So(staleDemuxer.closed, ShouldBeTrue)
		})

		Convey("keeps the paused flag across the transition", func() {
			current, _ := fakePipeline(0)
			fresh, _ := fakePipeline(0)
			player, _ := testPlayer(map[string]*Pipeline{"/b": fresh})

			q := queue.New(song(1, "/a"), song(2, "/b"))
			state := playingState(player, q, current)
			state.playing = false

			effects, err := player.step(state, Forward{})
			So(err, ShouldBeNil)
			So(effects.state.playing, ShouldBeFalse)
		})

		Convey("at the end of the queue it flushes and stops", func() {
			current, _ := fakePipeline(0)
			player, output := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), current)
			state.output = output

			effects, err := player.step(state, Forward{})
			So(err, ShouldBeNil)
			So(effects.state, ShouldBeNil)
			So(output.flushes, ShouldEqual, 1)
			So(output.closed, ShouldBeTrue)
		})
	})

	Convey("Back", t, func() {
		Convey("early in the song it returns to the previous track", func() {
			current, _ := fakePipeline(0)
			previous, _ := fakePipeline(0)
			player, _ := testPlayer(map[string]*Pipeline{"/prev": previous})

			q := queue.Queue[QueuedSong]{
				Previous: []QueuedSong{song(1, "/prev")},
				Current:  song(2, "/a"),
			}
			state := playingState(player, q, current)
			state.timestamp = 10 // one second in

			effects, err := player.step(state, Back{})
			So(err, ShouldBeNil)
			So(effects.state.queue.Current.ID, ShouldEqual, SongID(1))
			So(effects.preload.MustGet(), ShouldEqual, "/a")
		})

		Convey("later in the song it restarts the current track", func() {
			current, demuxer := fakePipeline(0)
			player, _ := testPlayer(nil)

			q := queue.Queue[QueuedSong]{
				Previous: []QueuedSong{song(1, "/prev")},
				Current:  song(2, "/a"),
			}
			state := playingState(player, q, current)
			state.timestamp = 50 // five seconds in

			effects, err := player.step(state, Back{})
			So(err, ShouldBeNil)
			So(effects.state.queue.Current.ID, ShouldEqual, SongID(2))
			So(demuxer.seekTo, ShouldResemble, []float64{0})
			So(effects.state.timestamp, ShouldEqual, 0)
		})

		Convey("with no previous track it restarts even when early", func() {
			current, demuxer := fakePipeline(0)
			player, _ := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), current)
			state.timestamp = 0

			effects, err := player.step(state, Back{})
			So(err, ShouldBeNil)
			So(effects.state.queue.Current.ID, ShouldEqual, SongID(1))
			So(demuxer.seekTo, ShouldResemble, []float64{0})
		})
	})
}

func TestStepSeek(t *testing.T) {
	Convey("Seek", t, func() {
		Convey("asks the container for the proportional position", func() {
			pipeline, demuxer := fakePipeline(0)
			demuxer.seekTS = 50
			player, _ := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), pipeline)

			effects, err := player.step(state, Seek{Proportion: 0.5})
			So(err, ShouldBeNil)
			So(demuxer.seekTo, ShouldResemble, []float64{5})

			Convey("and publishes the target position, not the stale one", func() {
				complete, ok := effects.message.(SeekComplete)
				So(ok, ShouldBeTrue)
				So(complete.Display.Times.Elapsed.Seconds, ShouldEqual, 5)
			})

			Convey("then discards packets before the landing tick", func() {
				state := effects.state
				So(state.seekTS.MustGet(), ShouldEqual, 50)

				// feed packets straddling the seek target
				fd := state.demuxer.(*fakeDemuxer)
				fd.packets = []*Packet{
					{Timestamp: 20, Spec: SampleSpec{Rate: 10, Channels: 2}, Frames: make([][2]float64, 10)},
					{Timestamp: 60, Spec: SampleSpec{Rate: 10, Channels: 2}, Frames: make([][2]float64, 10)},
				}

				output := &fakeOutput{}
				state.output = output

				effects, err := player.step(state, nil)
				So(err, ShouldBeNil)
				So(output.writes, ShouldEqual, 0)
				So(effects.state.seekTS.IsPresent(), ShouldBeTrue)
				So(effects.message, ShouldBeNil)

				effects, err = player.step(effects.state, nil)
				So(err, ShouldBeNil)
				So(output.writes, ShouldEqual, 1)
				So(effects.state.seekTS.IsAbsent(), ShouldBeTrue)
				So(effects.state.timestamp, ShouldEqual, 60)
			})
		})

		Convey("a failed container seek is recovered by playing on", func() {
			pipeline, demuxer := fakePipeline(0)
			demuxer.seekErr = errors.New("not seekable")
			player, _ := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), pipeline)

			effects, err := player.step(state, Seek{Proportion: 0.5})
			So(err, ShouldBeNil)
			So(effects.state.seekTS.IsAbsent(), ShouldBeTrue)

			_, ok := effects.message.(SeekComplete)
			So(ok, ShouldBeTrue)
		})

		Convey("missing time info publishes SeekComplete without seeking", func() {
			pipeline, demuxer := fakePipeline(0)
			pipeline.TrackInfo.Duration = mo.None[uint64]()
			player, _ := testPlayer(nil)
			state := playingState(player, queue.New(song(1, "/a")), pipeline)

			effects, err := player.step(state, Seek{Proportion: 0.5})
			So(err, ShouldBeNil)
			So(demuxer.seekTo, ShouldBeEmpty)

			_, ok := effects.message.(SeekComplete)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestSpawnDisconnect(t *testing.T) {
	Convey("Closing the action channel shuts the player down quietly", t, func() {
		actions := make(chan AudioAction)
		messages := make(chan AudioMessage, 16)

		done := Spawn(actions, messages, NoopControls{})
		close(actions)

		<-done

		select {
		case msg := <-messages:
			_, died := msg.(AudioDied)
			So(died, ShouldBeFalse)
		default:
		}
	})
}

func TestPublish(t *testing.T) {
	Convey("Publishing messages to the host", t, func() {
		toUI := make(chan AudioMessage, 1)
		player := &Player{toUI: toUI}

		Convey("progress updates are dropped when the host lags behind", func() {
			toUI <- DisplayUpdate{Display: mo.Some(PlayerDisplay{SongID: 1})}

			player.publish(DisplayUpdate{Display: mo.Some(PlayerDisplay{SongID: 2})})

			first := (<-toUI).(DisplayUpdate)
			So(first.Display.MustGet().SongID, ShouldEqual, SongID(1))
			So(len(toUI), ShouldEqual, 0)
		})

		Convey("a stop message waits until the host takes it", func() {
			toUI <- DisplayUpdate{Display: mo.Some(PlayerDisplay{})}

			delivered := make(chan struct{})
			go func() {
				player.publish(DisplayUpdate{Display: mo.None[PlayerDisplay]()})
				close(delivered)
			}()

			early := false
			select {
			case <-delivered:
				early = true
			case <-time.After(50 * time.Millisecond):
			}
			So(early, ShouldBeFalse)

			<-toUI

			arrived := false
			select {
			case <-delivered:
				arrived = true
			case <-time.After(time.Second):
			}
			So(arrived, ShouldBeTrue)

			stop := (<-toUI).(DisplayUpdate)
			So(stop.Display.IsAbsent(), ShouldBeTrue)
		})

		Convey("a seek completion waits too", func() {
			toUI <- DisplayUpdate{Display: mo.Some(PlayerDisplay{})}

			delivered := make(chan struct{})
			go func() {
				player.publish(SeekComplete{})
				close(delivered)
			}()

			<-toUI

			arrived := false
			select {
			case <-delivered:
				arrived = true
			case <-time.After(time.Second):
			}
			So(arrived, ShouldBeTrue)
		})
	})
}

func TestRequestPreload(t *testing.T) {
	Convey("Handing requests to the preloader", t, func() {
		player := &Player{toPreloader: make(chan string, 1)}

		Convey("an idle preloader gets the request directly", func() {
			player.requestPreload("/next")
			So(<-player.toPreloader, ShouldEqual, "/next")
		})

		Convey("a request still queued is replaced by the newer target", func() {
			player.requestPreload("/stale")
			player.requestPreload("/next")

			So(<-player.toPreloader, ShouldEqual, "/next")
			So(len(player.toPreloader), ShouldEqual, 0)
		})
	})
}
