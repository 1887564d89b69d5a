package history

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/cadenza-cli/cadenza/filesystem"
)

func init() {
	filesystem.SetMemMapFs()
}

func samplePaths() []string {
	return []string{"/music/a.flac", "/music/b.flac", "/music/c.flac"}
}

func TestSnapshot(t *testing.T) {
	Convey("Snapshot of a playback position", t, func() {
		paths := samplePaths()
		snapshot := Snapshot(paths, 1, 42)

		So(snapshot.Paths, ShouldResemble, samplePaths())
		So(snapshot.Index, ShouldEqual, 1)
		So(snapshot.ElapsedSeconds, ShouldEqual, 42)

		Convey("does not alias the caller's slice", func() {
			paths[0] = "/mutated"
			So(snapshot.Paths[0], ShouldEqual, "/music/a.flac")
		})

		Convey("rebuilds into a queue at the same position", func() {
			rebuilt, err := snapshot.Queue()
			So(err, ShouldBeNil)
			So(rebuilt.Len(), ShouldEqual, 3)
			So(rebuilt.Current.Path, ShouldEqual, "/music/b.flac")
			So(rebuilt.Previous[0].Path, ShouldEqual, "/music/a.flac")
			So(rebuilt.Next[0].Path, ShouldEqual, "/music/c.flac")
		})

		Convey("a corrupt snapshot refuses to rebuild", func() {
			_, err := (&SavedPlayback{Paths: nil, Index: 0}).Queue()
			So(err, ShouldNotBeNil)

			_, err = (&SavedPlayback{Paths: []string{"/a"}, Index: 5}).Queue()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPersistence(t *testing.T) {
	Convey("Saving and loading the snapshot", t, func() {
		Convey("round-trips through the store", func() {
			saved := Snapshot(samplePaths(), 1, 7)
			So(Save(saved), ShouldBeNil)

			loaded, err := Get()
			So(err, ShouldBeNil)
			So(loaded, ShouldResemble, saved)
		})

		Convey("Clear leaves nothing to resume", func() {
			So(Save(Snapshot(samplePaths(), 1, 7)), ShouldBeNil)
			So(Clear(), ShouldBeNil)

			loaded, err := Get()
			So(err, ShouldBeNil)
			So(loaded, ShouldBeNil)
		})
	})
}
