package audio

import (
	"github.com/samber/mo"
)

// TimeBase converts tick timestamps into wall-clock time. A tick spans
// Num/Den seconds; decoded audio uses one tick per frame, so Den is the
// sample rate.
type TimeBase struct {
	Num uint32
	Den uint32
}

// Time splits ticks into whole seconds and a fractional remainder below one
// second. The split keeps the whole-second part exact for long tracks.
func (tb TimeBase) Time(ticks uint64) Time {
	if tb.Den == 0 {
		return Time{}
	}

	num := uint64(tb.Num)
	den := uint64(tb.Den)

	whole := ticks / den * num
	rem := ticks % den * num

	return Time{
		Seconds: int64(whole + rem/den),
		Frac:    float64(rem%den) / float64(den),
	}
}

// Time is a duration as whole seconds plus a fraction in [0, 1).
type Time struct {
	Seconds int64
	Frac    float64
}

// ProgressTimes describes a playback position within a track.
type ProgressTimes struct {
	Elapsed   Time
	Remaining Time
	Total     Time
}

// ZeroProgress is the position before any audio has played.
var ZeroProgress = ProgressTimes{}

// TrackInfo carries the timing facts about the selected stream of an open
// track. TimeBase and Duration are absent when the container does not
// declare them.
type TrackInfo struct {
	ID       int
	TimeBase mo.Option[TimeBase]
	Duration mo.Option[uint64]
}

// ProgressTimes resolves a tick timestamp against the track length. It is
// empty unless both the time base and the duration are known. Remaining
// saturates at zero when the timestamp runs past the declared duration.
func (t TrackInfo) ProgressTimes(timestamp uint64) mo.Option[ProgressTimes] {
	timeBase, ok := t.TimeBase.Get()
	if !ok {
		return mo.None[ProgressTimes]()
	}

	duration, ok := t.Duration.Get()
	if !ok {
		return mo.None[ProgressTimes]()
	}

	var left uint64
	if duration > timestamp {
		left = duration - timestamp
	}

	return mo.Some(ProgressTimes{
		Elapsed:   timeBase.Time(timestamp),
		Remaining: timeBase.Time(left),
		Total:     timeBase.Time(duration),
	})
}
