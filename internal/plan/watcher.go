package plan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reports changes to the plan listing. Bursts of filesystem events
// are debounced into one callback.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func(Listing)
	debounce time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	pending bool

	wg sync.WaitGroup
}

// NewWatcher watches plansDir and its templates directory. onChange
// receives the fresh listing after each settled burst of changes.
func NewWatcher(plansDir string, onChange func(Listing), log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("plan.NewWatcher: %w", err)
	}
	for _, dir := range []string{plansDir, filepath.Join(plansDir, TemplatesDir)} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("plan.NewWatcher: watch %s: %w", dir, err)
		}
	}
	return &Watcher{dir: plansDir, watcher: fw, onChange: onChange, debounce: defaultDebounce, log: log}, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	w.wg.Add(1)
	go w.debounceLoop(ctx)
	defer func() {
		w.wg.Wait()
		w.watcher.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("plan watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == TemplatesDir && filepath.Dir(ev.Name) == filepath.Clean(w.dir) {
		if err := w.watcher.Add(ev.Name); err != nil {
			w.log.Warn().Err(err).Str("dir", ev.Name).Msg("watch templates directory")
		}
	}
	if !strings.HasSuffix(ev.Name, ".json") || ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}
	w.mu.Lock()
	w.pending = true
	w.mu.Unlock()
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			fire := w.pending
			w.pending = false
			w.mu.Unlock()
			if !fire {
				continue
			}
			l, err := List(w.dir)
			if err != nil {
				w.log.Warn().Err(err).Msg("list plan files")
				continue
			}
			w.onChange(l)
		}
	}
}
