package audio

import (
	"github.com/cadenza-cli/cadenza/log"
)

// PreloaderEffect is a notification from the preloader to the player.
type PreloaderEffect interface {
	preloaderEffect()
}

// Loaded carries a pipeline the preloader opened ahead of time.
type Loaded struct {
	Path     string
	Pipeline *Pipeline
}

// PreloaderDied reports that the preloader exited; the player keeps working,
// it just opens every track synchronously from then on.
type PreloaderDied struct{}

func (Loaded) preloaderEffect()        {}
func (PreloaderDied) preloaderEffect() {}

// SpawnPreloader starts the worker that opens upcoming tracks ahead of time.
// It handles one request at a time and never decodes audio. It exits when
// the inbox closes or an open fails, signaling PreloaderDied best effort.
func SpawnPreloader(inbox <-chan string, toPlayer chan<- PreloaderEffect) {
	go func() {
		if err := preloaderLoop(inbox, toPlayer); err != nil {
			log.Errorf("preload error: %v", err)
		}

		select {
		case toPlayer <- PreloaderDied{}:
		default:
		}
	}()
}

func preloaderLoop(inbox <-chan string, toPlayer chan<- PreloaderEffect) error {
	for path := range inbox {
		log.Tracef("preloading %s", path)

		pipeline, err := Open(path)
		if err != nil {
			return err
		}

		log.Trace("finished preload")

		select {
		case toPlayer <- Loaded{Path: path, Pipeline: pipeline}:
		default:
			// player stopped draining; drop the pipeline
			pipeline.Close()
		}
	}

	return nil
}
