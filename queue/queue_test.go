package queue

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestQueue(t *testing.T) {
	Convey("Queue of three items positioned at the first", t, func() {
		q := New("a", "b", "c")

		So(q.Len(), ShouldEqual, 3)
		So(q.Current, ShouldEqual, "a")
		So(q.Previous, ShouldBeEmpty)
		So(q.Next, ShouldResemble, []string{"b", "c"})

		Convey("TryBack at the start fails and leaves the queue unchanged", func() {
			back, ok := q.TryBack()
			So(ok, ShouldBeFalse)
			So(back, ShouldResemble, q)
		})

		Convey("TryForward advances to the second item", func() {
			fwd, ok := q.TryForward()
			So(ok, ShouldBeTrue)
			So(fwd.Current, ShouldEqual, "b")
			So(fwd.Previous, ShouldResemble, []string{"a"})
			So(fwd.Next, ShouldResemble, []string{"c"})
			So(fwd.Len(), ShouldEqual, 3)

			Convey("and again to the last", func() {
				last, ok := fwd.TryForward()
				So(ok, ShouldBeTrue)
				So(last.Current, ShouldEqual, "c")
				So(last.Previous, ShouldResemble, []string{"a", "b"})
				So(last.Next, ShouldBeEmpty)

				Convey("TryForward at the end fails and leaves the queue unchanged", func() {
					over, ok := last.TryForward()
					So(ok, ShouldBeFalse)
					So(over, ShouldResemble, last)
				})

				Convey("TryBack walks all the way home", func() {
					mid, ok := last.TryBack()
					So(ok, ShouldBeTrue)
					So(mid.Current, ShouldEqual, "b")

					first, ok := mid.TryBack()
					So(ok, ShouldBeTrue)
					So(first.Current, ShouldEqual, "a")
					So(first.Previous, ShouldBeEmpty)
					So(first.Next, ShouldResemble, []string{"b", "c"})
				})
			})
		})

		Convey("moves do not alias the original slices", func() {
			fwd, _ := q.TryForward()
			fwd.Previous[0] = "mutated"
			So(q.Current, ShouldEqual, "a")

			back, _ := fwd.TryBack()
			back.Next[0] = "mutated"
			So(fwd.Current, ShouldEqual, "b")
		})
	})

	Convey("Queue of one item", t, func() {
		q := New(42)

		So(q.Len(), ShouldEqual, 1)

		_, ok := q.TryForward()
		So(ok, ShouldBeFalse)

		_, ok = q.TryBack()
		So(ok, ShouldBeFalse)
	})
}
