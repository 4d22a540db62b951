package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Janitor periodically removes temp files that outlived any request, such as
// those left by a crashed process sharing the same directory.
type Janitor struct {
	store    *TempStore
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewJanitor creates a janitor that sweeps every interval, removing files
// older than maxAge.
func NewJanitor(store *TempStore, maxAge, interval time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		log:      log.With().Str("component", "temp-janitor").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (j *Janitor) Start() {
	go j.loop()
}

// Stop ends the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done
}

func (j *Janitor) loop() {
	defer close(j.done)

	// Run once on startup to clear leftovers from a previous run
	j.store.SweepStale(j.maxAge)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := j.store.SweepStale(j.maxAge); n > 0 {
				j.log.Debug().Int("files", n).Msg("sweep complete")
			}
		case <-j.stop:
			return
		}
	}
}
