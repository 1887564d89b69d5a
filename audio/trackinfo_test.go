package audio

import (
	"testing"

	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTimeBase(t *testing.T) {
	Convey("TimeBase at one tick per frame", t, func() {
		tb := TimeBase{Num: 1, Den: 44100}

		Convey("zero ticks is zero time", func() {
			So(tb.Time(0), ShouldResemble, Time{})
		})

		Convey("whole seconds come out exact", func() {
			So(tb.Time(3*44100), ShouldResemble, Time{Seconds: 3, Frac: 0})
		})

		Convey("half a second lands in the fraction", func() {
			tm := tb.Time(22050)
			So(tm.Seconds, ShouldEqual, 0)
			So(tm.Frac, ShouldAlmostEqual, 0.5)
		})

		Convey("a zero denominator yields zero time instead of dividing", func() {
			So(TimeBase{}.Time(123), ShouldResemble, Time{})
		})
	})
}

func TestProgressTimes(t *testing.T) {
	Convey("TrackInfo progress", t, func() {
		full := TrackInfo{
			ID:       0,
			TimeBase: mo.Some(TimeBase{Num: 1, Den: 10}),
			Duration: mo.Some[uint64](100),
		}

		Convey("is empty without a time base", func() {
			info := full
			info.TimeBase = mo.None[TimeBase]()
			So(info.ProgressTimes(50).IsAbsent(), ShouldBeTrue)
		})

		Convey("is empty without a duration", func() {
			info := full
			info.Duration = mo.None[uint64]()
			So(info.ProgressTimes(50).IsAbsent(), ShouldBeTrue)
		})

		Convey("reports elapsed, remaining and total", func() {
			times := full.ProgressTimes(30).MustGet()
			So(times.Elapsed, ShouldResemble, Time{Seconds: 3, Frac: 0})
			So(times.Remaining, ShouldResemble, Time{Seconds: 7, Frac: 0})
			So(times.Total, ShouldResemble, Time{Seconds: 10, Frac: 0})
		})

		Convey("remaining saturates when the timestamp runs past the end", func() {
			times := full.ProgressTimes(150).MustGet()
			So(times.Elapsed.Seconds, ShouldEqual, 15)
			So(times.Remaining, ShouldResemble, Time{Seconds: 0, Frac: 0})
		})
	})
}
