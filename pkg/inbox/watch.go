package inbox

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	debounceTick = 250 * time.Millisecond
	settleDelay  = 300 * time.Millisecond
)

// Watch processes files as they appear in the inbox until ctx is cancelled.
// Writes are debounced so half-copied files are not read.
func (s *Scanner) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(s.opts.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.opts.Dir, err)
	}
	if !s.opts.DryRun {
		if err := s.preload(ctx); err != nil {
			return err
		}
	}
	s.log.Info("watching receipt inbox", zap.String("dir", s.opts.Dir))

	names := make(chan string, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if s.opts.DryRun {
			for n := range names {
				s.dryRun(n)
			}
			return
		}
		s.runWorkers(ctx, names)
	}()

	err = s.debounce(ctx, w.Events, w.Errors, names)
	close(names)
	<-done
	return err
}

// debounce forwards a file name once no event has touched it for settleDelay.
func (s *Scanner) debounce(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, out chan<- string) error {
	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if filepath.Dir(ev.Name) != filepath.Clean(s.opts.Dir) || !isSupportedExt(name) {
				continue
			}
			pending[name] = time.Now()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			s.log.Warn("watch error", zap.Error(err))
		case now := <-ticker.C:
			for name, t := range pending {
				if now.Sub(t) < settleDelay {
					continue
				}
				delete(pending, name)
				s.found.Add(1)
				select {
				case out <- name:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}
