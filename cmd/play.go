// Package cmd implements the command-line interface for cadenza.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadenza-cli/cadenza/audio"
	"github.com/cadenza-cli/cadenza/constant"
	"github.com/cadenza-cli/cadenza/history"
	"github.com/cadenza-cli/cadenza/key"
	"github.com/cadenza-cli/cadenza/library"
	"github.com/cadenza-cli/cadenza/log"
	"github.com/cadenza-cli/cadenza/mpris"
	"github.com/cadenza-cli/cadenza/queue"
	"github.com/cadenza-cli/cadenza/style"
)

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().BoolP("continue", "c", false, "Resume playback from the saved session")
}

// playCmd plays files and directories, or resumes the saved session.
var playCmd = &cobra.Command{
	Use:   "play [paths...]",
	Short: "Play audio files or directories",
	Args:  cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(runPlay(args, lo.Must(cmd.Flags().GetBool("continue"))))
	},
}

// runPlay is the hosting loop around the audio engine: it builds the queue,
// spawns the player, forwards media-key and terminal events, renders
// progress and persists the session.
func runPlay(args []string, resume bool) error {
	q, resumeSeconds, err := buildQueue(args, resume)
	if err != nil {
		return err
	}

	actions := make(chan audio.AudioAction, 16)
	messages := make(chan audio.AudioMessage, 64)

	var controls audio.MediaControls = audio.NoopControls{}
	var busControls *mpris.Controls
	if viper.GetBool(key.MprisEnable) && runtime.GOOS == constant.Linux {
		busControls = mpris.New(actions)
		controls = busControls
	}

	done := audio.Spawn(actions, messages, controls)

	// shutdown order matters: the bus controls must stop sending before the
	// action channel closes. Messages keep draining until the player is
	// gone, since its stop and seek-complete sends block.
	shutdown := func() {
		if busControls != nil {
			busControls.Close()
		}
		close(actions)
		for {
			select {
			case <-messages:
			case <-done:
				return
			}
		}
	}

	actions <- audio.PlayQueue{Queue: q}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	session := newPlaySession(q, resumeSeconds)

	for {
		select {
		case message := <-messages:
			switch message := message.(type) {
			case audio.DisplayUpdate:
				display, ok := message.Display.Get()
				if !ok {
					// the queue ran out; nothing left to resume
					fmt.Println()
					if viper.GetBool(key.HistorySaveOnPlay) {
						if err := history.Clear(); err != nil {
							log.Errorf("failed to clear history: %v", err)
						}
					}
					shutdown()
					return nil
				}

				if seek, ok := session.observe(display); ok {
					actions <- seek
				}
				session.render(display)

			case audio.SeekComplete:
				session.observe(message.Display)
				session.render(message.Display)

			case audio.AudioDied:
				shutdown()
				return fmt.Errorf("the audio engine died, see the log for details")
			}

		case <-sigs:
			fmt.Println()
			session.save()
			shutdown()
			return nil
		}
	}
}

func buildQueue(args []string, resume bool) (queue.Queue[audio.QueuedSong], int64, error) {
	if resume {
		saved, err := history.Get()
		if err != nil {
			return queue.Queue[audio.QueuedSong]{}, 0, err
		}
		if saved == nil {
			return queue.Queue[audio.QueuedSong]{}, 0,
				fmt.Errorf("nothing to continue: no saved session")
		}

		q, err := saved.Queue()
		return q, saved.ElapsedSeconds, err
	}

	songs, err := library.Resolve(args)
	if err != nil {
		return queue.Queue[audio.QueuedSong]{}, 0, err
	}

	return queue.New(songs[0], songs[1:]...), 0, nil
}

// playSession tracks what the engine reported last, for rendering and for
// the history snapshot.
type playSession struct {
	paths   []string
	titles  map[audio.SongID]string
	indexes map[audio.SongID]int

	index   int
	elapsed int64

	resumeSeconds int64
	resumePending bool
}

func newPlaySession(q queue.Queue[audio.QueuedSong], resumeSeconds int64) *playSession {
	session := &playSession{
		titles:        make(map[audio.SongID]string),
		indexes:       make(map[audio.SongID]int),
		index:         len(q.Previous),
		resumeSeconds: resumeSeconds,
		resumePending: resumeSeconds > 0,
	}

	register := func(song audio.QueuedSong) {
		session.indexes[song.ID] = len(session.paths)
		session.titles[song.ID] = song.Title.OrElse(filepath.Base(song.Path))
		session.paths = append(session.paths, song.Path)
	}

	for _, song := range q.Previous {
		register(song)
	}
	register(q.Current)
	for _, song := range q.Next {
		register(song)
	}

	return session
}

// observe folds a display update into the session. On a track change the
// session is saved; right after a resumed start it yields the one Seek that
// restores the old position.
func (s *playSession) observe(display audio.PlayerDisplay) (audio.Seek, bool) {
	if index, ok := s.indexes[display.SongID]; ok && index != s.index {
		s.index = index
		s.elapsed = 0
		s.resumePending = false
		s.save()
	}

	s.elapsed = display.Times.Elapsed.Seconds

	if s.resumePending {
		total := float64(display.Times.Total.Seconds) + display.Times.Total.Frac
		if total > 0 {
			s.resumePending = false

			proportion := float64(s.resumeSeconds) / total
			if proportion > 1 {
				proportion = 1
			}

			return audio.Seek{Proportion: float32(proportion)}, true
		}
	}

	return audio.Seek{}, false
}

func (s *playSession) save() {
	if !viper.GetBool(key.HistorySaveOnPlay) {
		return
	}

	if err := history.Save(history.Snapshot(s.paths, s.index, s.elapsed)); err != nil {
		log.Errorf("failed to save history: %v", err)
	}
}

func (s *playSession) render(display audio.PlayerDisplay) {
	icon := "▶"
	if !display.Playing {
		icon = "⏸"
	}

	title := s.titles[display.SongID]

	line := fmt.Sprintf("%s %s  %s %s %s",
		icon,
		style.Bold(title),
		formatTime(display.Times.Elapsed),
		style.Faint("/"),
		formatTime(display.Times.Total),
	)

	fmt.Printf("\r\033[K%s", style.Truncate(100)(line))
}

func formatTime(t audio.Time) string {
	return fmt.Sprintf("%d:%02d", t.Seconds/60, t.Seconds%60)
}
