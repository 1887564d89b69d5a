// Package history persists the last played queue so playback can resume
// across runs.
package history

import (
	"fmt"

	"github.com/metafates/gache"

	"github.com/cadenza-cli/cadenza/audio"
	"github.com/cadenza-cli/cadenza/filesystem"
	"github.com/cadenza-cli/cadenza/library"
	"github.com/cadenza-cli/cadenza/queue"
	"github.com/cadenza-cli/cadenza/where"
)

// SavedPlayback is the resumable snapshot of a play session.
type SavedPlayback struct {
	Paths          []string `json:"paths"`
	Index          int      `json:"index"`
	ElapsedSeconds int64    `json:"elapsed_seconds"`
}

// cacher is the disk-backed store for the snapshot.
var cacher = gache.New[*SavedPlayback](
	&gache.Options{
		Path:       where.History(),
		FileSystem: &filesystem.GacheFs{},
	},
)

// Get returns the saved snapshot, or nothing if none was saved yet.
func Get() (*SavedPlayback, error) {
	cached, expired, err := cacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return nil, nil
	}
	return cached, nil
}

// Save persists the snapshot, replacing the previous one.
func Save(playback *SavedPlayback) error {
	return cacher.Set(playback)
}

// Clear drops the snapshot.
func Clear() error {
	return cacher.Set(nil)
}

// Snapshot captures a playback position for saving.
func Snapshot(paths []string, index int, elapsedSeconds int64) *SavedPlayback {
	return &SavedPlayback{
		Paths:          append([]string(nil), paths...),
		Index:          index,
		ElapsedSeconds: elapsedSeconds,
	}
}

// Queue rebuilds the playback queue from the snapshot, positioned at the
// song that was playing when it was taken.
func (s *SavedPlayback) Queue() (queue.Queue[audio.QueuedSong], error) {
	if len(s.Paths) == 0 || s.Index < 0 || s.Index >= len(s.Paths) {
		return queue.Queue[audio.QueuedSong]{}, fmt.Errorf("saved playback is corrupt")
	}

	songs := make([]audio.QueuedSong, 0, len(s.Paths))
	for _, path := range s.Paths {
		songs = append(songs, library.Load(path))
	}

	return queue.Queue[audio.QueuedSong]{
		Previous: songs[:s.Index],
		Current:  songs[s.Index],
		Next:     songs[s.Index+1:],
	}, nil
}
