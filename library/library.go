// Package library discovers playable files and turns them into queue
// entries, with tags and cached cover art attached.
package library

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhowden/tag"
	"github.com/nfnt/resize"
	"github.com/samber/mo"
	"github.com/spf13/viper"

	"github.com/cadenza-cli/cadenza/audio"
	"github.com/cadenza-cli/cadenza/constant"
	"github.com/cadenza-cli/cadenza/filesystem"
	"github.com/cadenza-cli/cadenza/key"
	"github.com/cadenza-cli/cadenza/log"
	"github.com/cadenza-cli/cadenza/where"
)

// Resolve expands the given arguments into an ordered list of queue entries.
// A file argument becomes one entry; a directory is walked recursively.
// With no arguments the configured library roots are used.
func Resolve(args []string) ([]audio.QueuedSong, error) {
	roots := args
	if len(roots) == 0 {
		roots = viper.GetStringSlice(key.LibraryRoots)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("nothing to play: no paths given and no library roots configured")
	}

	var paths []string
	for _, root := range roots {
		found, err := scan(root)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no playable files under %s", strings.Join(roots, ", "))
	}

	songs := make([]audio.QueuedSong, 0, len(paths))
	for _, path := range paths {
		songs = append(songs, Load(path))
	}

	return songs, nil
}

// scan lists the playable files under root in path order. A root that is
// itself a playable file is returned as-is, without the extension filter
// second-guessing an explicit choice.
func scan(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := filesystem.API().Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", root, err)
	}

	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filesystem.API().Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("skipping %s: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if constant.IsSupportedExtension(filepath.Ext(path)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)

	return paths, nil
}

// Load builds the queue entry for one file. Tag reading is best effort; a
// file without tags still plays, titled by its base name.
func Load(path string) audio.QueuedSong {
	song := audio.QueuedSong{
		ID:    SongID(path),
		Path:  path,
		Title: mo.Some(stem(path)),
	}

	file, err := filesystem.API().Open(path)
	if err != nil {
		log.Warnf("cannot read tags of %s: %v", path, err)
		return song
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		log.Debugf("no tags in %s: %v", path, err)
		return song
	}

	if title := metadata.Title(); title != "" {
		song.Title = mo.Some(title)
	}
	if artist := metadata.Artist(); artist != "" {
		song.Artist = mo.Some(artist)
	}
	if album := metadata.Album(); album != "" {
		song.AlbumTitle = mo.Some(album)
	}

	song.ResizedArt = cachedCover(song.ID, metadata)

	return song
}

// SongID derives the stable identifier for a path.
func SongID(path string) audio.SongID {
	h := fnv.New64a()
	h.Write([]byte(path))
	return audio.SongID(h.Sum64())
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// cachedCover extracts the embedded picture, scales it down and caches it
// as a JPEG named by the song id. An already cached cover is reused.
func cachedCover(id audio.SongID, metadata tag.Metadata) mo.Option[string] {
	picture := metadata.Picture()
	if picture == nil {
		return mo.None[string]()
	}

	target := filepath.Join(where.Covers(), fmt.Sprintf("%016x.jpg", uint64(id)))

	if exists, err := filesystem.API().Exists(target); err == nil && exists {
		return mo.Some(target)
	}

	img, _, err := image.Decode(bytes.NewReader(picture.Data))
	if err != nil {
		log.Warnf("cannot decode cover art: %v", err)
		return mo.None[string]()
	}

	size := uint(viper.GetInt(key.LibraryCoverSize))
	scaled := resize.Thumbnail(size, size, img, resize.Lanczos3)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, scaled, nil); err != nil {
		log.Warnf("cannot encode cover art: %v", err)
		return mo.None[string]()
	}

	if err := filesystem.API().WriteFile(target, out.Bytes(), os.ModePerm); err != nil {
		log.Warnf("cannot cache cover art: %v", err)
		return mo.None[string]()
	}

	return mo.Some(target)
}
