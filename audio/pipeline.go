package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/samber/mo"
	"github.com/spf13/afero"

	"github.com/cadenza-cli/cadenza/filesystem"
)

// packetFrames is the fixed frame capacity of every demuxed packet.
const packetFrames = 1024

// deviceRate is the fixed output rate. Every track is resampled to it, so
// one audio device context can serve a mixed-rate queue.
const deviceRate = 44100

// resampleQuality is beep's middle quality setting.
const resampleQuality = 4

// codecNull marks a stream that carries no decodable audio.
const codecNull = ""

// SampleSpec describes the shape of decoded audio.
type SampleSpec struct {
	Rate     int
	Channels int
}

// Packet is one demuxed block of stereo frames. Timestamp is the tick of the
// first frame; ticks count frames since the start of the track.
type Packet struct {
	Timestamp uint64
	Spec      SampleSpec
	Frames    [][2]float64
}

// PCMBuffer is one packet decoded into the interleaved signed 16-bit
// little-endian format the output sink consumes. Capacity is the packet
// frame capacity, which is constant for the life of the pipeline.
type PCMBuffer struct {
	Spec     SampleSpec
	Capacity int
	Data     []byte
}

// Demuxer reads a container one packet at a time. NextPacket returns io.EOF
// at the normal end of the track.
type Demuxer interface {
	Streams() []StreamInfo
	NextPacket() (*Packet, error)
	// Seek moves to the given position in seconds and returns the tick the
	// container actually lands on, which may be earlier than requested.
	Seek(seconds float64) (requiredTS uint64, err error)
	Close() error
}

// Decoder converts demuxed packets into output-ready PCM.
type Decoder interface {
	Decode(packet *Packet) (*PCMBuffer, error)
}

// StreamInfo identifies one stream of a container.
type StreamInfo struct {
	ID    int
	Codec string
}

// Pipeline is a fully opened track: its demuxer, the decoder for the
// selected stream, and the stream's timing facts.
type Pipeline struct {
	Demuxer   Demuxer
	Decoder   Decoder
	TrackInfo TrackInfo
}

// Close releases the underlying file.
func (p *Pipeline) Close() error {
	return p.Demuxer.Close()
}

// TrackError is the single error shape Open produces. The wrapped cause
// names the failed stage; callers treat the whole thing as "cannot play
// this track".
type TrackError struct {
	Path  string
	Stage string
	Err   error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("cannot play %s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *TrackError) Unwrap() error { return e.Err }

// DecodeError marks a recoverable per-packet decode failure. The player
// skips the packet and moves on.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode error: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// Open builds the whole decode pipeline for a track, or fails with a
// TrackError naming the stage that refused it. There is no partial result;
// the file is closed again on any failure past the open stage.
func Open(path string) (*Pipeline, error) {
	file, err := filesystem.API().Open(path)
	if err != nil {
		return nil, &TrackError{Path: path, Stage: "open", Err: err}
	}

	demuxer, err := probe(file, path)
	if err != nil {
		file.Close()
		return nil, &TrackError{Path: path, Stage: "probe", Err: err}
	}

	stream, err := firstPlayableStream(demuxer.Streams())
	if err != nil {
		demuxer.Close()
		return nil, &TrackError{Path: path, Stage: "select stream", Err: err}
	}

	return &Pipeline{
		Demuxer:   demuxer,
		Decoder:   &pcmDecoder{},
		TrackInfo: demuxer.trackInfo(stream.ID),
	}, nil
}

// firstPlayableStream picks the first stream whose codec is known.
func firstPlayableStream(streams []StreamInfo) (StreamInfo, error) {
	for _, stream := range streams {
		if stream.Codec != codecNull {
			return stream, nil
		}
	}

	return StreamInfo{}, fmt.Errorf("no playable stream")
}

// containerFormat binds a codec name to its extension hints, content magic
// and decode entry point.
type containerFormat struct {
	codec      string
	extensions []string
	sniff      func(header []byte) bool
	decode     func(file afero.File) (beep.StreamSeekCloser, beep.Format, error)
}

var containerFormats = []containerFormat{
	{
		codec:      "flac",
		extensions: []string{".flac"},
		sniff:      func(h []byte) bool { return bytes.HasPrefix(h, []byte("fLaC")) },
		decode: func(f afero.File) (beep.StreamSeekCloser, beep.Format, error) {
			return flac.Decode(f)
		},
	},
	{
		codec:      "mp3",
		extensions: []string{".mp3"},
		sniff: func(h []byte) bool {
			return bytes.HasPrefix(h, []byte("ID3")) ||
				(len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0)
		},
		decode: func(f afero.File) (beep.StreamSeekCloser, beep.Format, error) {
			return mp3.Decode(f)
		},
	},
	{
		codec:      "wav",
		extensions: []string{".wav"},
		sniff:      func(h []byte) bool { return bytes.HasPrefix(h, []byte("RIFF")) },
		decode: func(f afero.File) (beep.StreamSeekCloser, beep.Format, error) {
			return wav.Decode(f)
		},
	},
	{
		codec:      "vorbis",
		extensions: []string{".ogg", ".oga"},
		sniff:      func(h []byte) bool { return bytes.HasPrefix(h, []byte("OggS")) },
		decode: func(f afero.File) (beep.StreamSeekCloser, beep.Format, error) {
			return vorbis.Decode(f)
		},
	},
}

// probe finds a format reader for the file. The extension is only a hint:
// the hinted format is tried first, then formats whose content magic
// matches, then the rest.
func probe(file afero.File, path string) (*beepDemuxer, error) {
	header := make([]byte, 16)
	n, _ := io.ReadFull(file, header)
	header = header[:n]

	ext := strings.ToLower(filepath.Ext(path))

	var candidates []containerFormat
	seen := make(map[string]bool)
	admit := func(f containerFormat) {
		if !seen[f.codec] {
			seen[f.codec] = true
			candidates = append(candidates, f)
		}
	}

	for _, f := range containerFormats {
		for _, e := range f.extensions {
			if e == ext {
				admit(f)
			}
		}
	}
	for _, f := range containerFormats {
		if f.sniff(header) {
			admit(f)
		}
	}
	for _, f := range containerFormats {
		admit(f)
	}

	var lastErr error
	for _, candidate := range candidates {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}

		stream, format, err := candidate.decode(file)
		if err != nil {
			lastErr = err
			continue
		}

		demuxer := &beepDemuxer{
			file:   file,
			stream: stream,
			format: format,
			codec:  candidate.codec,
		}
		demuxer.resetSource()

		return demuxer, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("unrecognized container")
	}

	return nil, fmt.Errorf("input not supported by any format reader: %w", lastErr)
}

// beepDemuxer adapts a decoded stream to the packet interface. The position
// counter is the tick clock; one tick per frame at the device rate.
type beepDemuxer struct {
	file   afero.File
	stream beep.StreamSeekCloser
	// source is what packets are read from: the stream itself when the
	// track is already at the device rate, a resampler over it otherwise
	source beep.Streamer
	format beep.Format
	codec  string
	pos    uint64
}

// resetSource rebuilds the playback streamer. The resampler buffers source
// samples, so it is rebuilt after every container seek.
func (d *beepDemuxer) resetSource() {
	if int(d.format.SampleRate) == deviceRate {
		d.source = d.stream
		return
	}

	d.source = beep.Resample(resampleQuality, d.format.SampleRate, deviceRate, d.stream)
}

// deviceTicks converts a source frame count into ticks at the device rate.
func (d *beepDemuxer) deviceTicks(srcFrames int) uint64 {
	if srcFrames <= 0 {
		return 0
	}

	return uint64(srcFrames) * deviceRate / uint64(d.format.SampleRate)
}

func (d *beepDemuxer) Streams() []StreamInfo {
	return []StreamInfo{{ID: 0, Codec: d.codec}}
}

func (d *beepDemuxer) spec() SampleSpec {
	// Decoded frames are always stereo pairs at the device rate, whatever
	// the source looks like.
	return SampleSpec{
		Rate:     deviceRate,
		Channels: 2,
	}
}

func (d *beepDemuxer) trackInfo(streamID int) TrackInfo {
	info := TrackInfo{
		ID:       streamID,
		TimeBase: mo.Some(TimeBase{Num: 1, Den: deviceRate}),
	}

	if length := d.stream.Len(); length > 0 {
		info.Duration = mo.Some(d.deviceTicks(length))
	}

	return info
}

func (d *beepDemuxer) NextPacket() (*Packet, error) {
	frames := make([][2]float64, packetFrames)

	n, ok := d.source.Stream(frames)
	if n == 0 {
		if !ok {
			if err := d.stream.Err(); err != nil {
				return nil, fmt.Errorf("reading next packet: %w", err)
			}
			return nil, io.EOF
		}
		return nil, io.EOF
	}

	packet := &Packet{
		Timestamp: d.pos,
		Spec:      d.spec(),
		Frames:    frames[:n],
	}
	d.pos += uint64(n)

	return packet, nil
}

func (d *beepDemuxer) Seek(seconds float64) (uint64, error) {
	target := int(seconds * float64(d.format.SampleRate))
	if target < 0 {
		target = 0
	}
	if length := d.stream.Len(); length > 0 && target > length {
		target = length
	}

	if err := d.stream.Seek(target); err != nil {
		return 0, fmt.Errorf("container seek: %w", err)
	}

	d.resetSource()
	d.pos = d.deviceTicks(d.stream.Position())

	return d.pos, nil
}

func (d *beepDemuxer) Close() error {
	err := d.stream.Close()
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// pcmDecoder converts float frames into the interleaved 16-bit output
// format.
type pcmDecoder struct{}

func (pcmDecoder) Decode(packet *Packet) (*PCMBuffer, error) {
	if packet.Spec.Rate <= 0 || packet.Spec.Channels <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("invalid sample spec %+v", packet.Spec)}
	}

	data := make([]byte, len(packet.Frames)*4)
	for i, frame := range packet.Frames {
		binary.LittleEndian.PutUint16(data[i*4:], uint16(sampleToInt16(frame[0])))
		binary.LittleEndian.PutUint16(data[i*4+2:], uint16(sampleToInt16(frame[1])))
	}

	return &PCMBuffer{
		Spec:     packet.Spec,
		Capacity: packetFrames,
		Data:     data,
	}, nil
}

func sampleToInt16(sample float64) int16 {
	if sample > 1 {
		sample = 1
	}
	if sample < -1 {
		sample = -1
	}
	return int16(sample * 32767)
}
