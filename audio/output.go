package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cadenza-cli/cadenza/log"
)

// Output is the audio device sink. Write blocks while the device buffer is
// full, which is what paces the decode loop. Flush blocks until everything
// written has been played. Close releases the device player.
type Output interface {
	Write(buf *PCMBuffer) error
	Flush()
	Close()
}

// OpenOutput builds a sink for a sample spec. capacity is the packet frame
// capacity and sizes the internal buffering.
type OpenOutput func(spec SampleSpec, capacity int) (Output, error)

// otoContext is process-global; oto only allows one.
var (
	otoContext     *oto.Context
	otoContextSpec SampleSpec
	otoContextOnce sync.Once
	otoContextErr  error
)

func sharedOtoContext(spec SampleSpec) (*oto.Context, error) {
	otoContextOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   spec.Rate,
			ChannelCount: spec.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoContextErr = fmt.Errorf("opening audio device: %w", err)
			return
		}
		<-ready

		otoContext = ctx
		otoContextSpec = spec
	})

	if otoContextErr != nil {
		return nil, otoContextErr
	}

	// the demuxer resamples every track to the device rate, so a mismatch
	// means a sink was opened with something else entirely
	if spec != otoContextSpec {
		return nil, fmt.Errorf("audio device is open at %d Hz, %d ch; cannot honor %d Hz, %d ch",
			otoContextSpec.Rate, otoContextSpec.Channels, spec.Rate, spec.Channels)
	}

	return otoContext, nil
}

// otoOutput feeds the device player from a bounded ring of PCM bytes.
type otoOutput struct {
	player *oto.Player
	ring   *pcmRing
}

// openOtoOutput opens the device sink. The ring holds roughly four packets
// so a slow device pushes back on the decoder quickly.
func openOtoOutput(spec SampleSpec, capacity int) (Output, error) {
	ctx, err := sharedOtoContext(spec)
	if err != nil {
		return nil, err
	}

	ring := newPCMRing(capacity * spec.Channels * 2 * 4)

	player := ctx.NewPlayer(ring)
	player.Play()

	return &otoOutput{player: player, ring: ring}, nil
}

func (o *otoOutput) Write(buf *PCMBuffer) error {
	o.ring.push(buf.Data)
	return nil
}

func (o *otoOutput) Close() {
	if err := o.player.Close(); err != nil {
		log.Warnf("closing audio player: %v", err)
	}
}

func (o *otoOutput) Flush() {
	deadline := time.Now().Add(5 * time.Second)

	for o.ring.buffered() > 0 || o.player.UnplayedBufferSize() > 0 {
		if time.Now().After(deadline) {
			log.Warn("output flush timed out")
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// pcmRing is the bounded byte queue between the decode loop and the device
// reader. push blocks while the queue is at capacity; Read hands out silence
// when it is empty so the device never starves.
type pcmRing struct {
	mu      sync.Mutex
	notFull *sync.Cond
	data    []byte
	max     int
}

func newPCMRing(max int) *pcmRing {
	r := &pcmRing{max: max}
	r.notFull = sync.NewCond(&r.mu)
	return r
}

func (r *pcmRing) push(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.data) >= r.max {
		r.notFull.Wait()
	}

	r.data = append(r.data, p...)
}

func (r *pcmRing) buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.data)
}

func (r *pcmRing) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, r.data)
	r.data = r.data[n:]
	r.notFull.Signal()

	return n, nil
}
