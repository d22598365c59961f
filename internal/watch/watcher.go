package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/oguzcantas/benchsum/internal/aggregate"
	"github.com/oguzcantas/benchsum/internal/report"
	"github.com/oguzcantas/benchsum/internal/store"
)

// Watcher monitors a runs root and re-renders a run's summary.md when
// its records.json changes. Events are debounced per run label so a
// burst of writes produces one summary.
type Watcher struct {
	store    store.Store
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(st store.Store, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		store:    st,
		logger:   logger,
		debounce: debounce,
		watcher:  fw,
		timers:   map[string]*time.Timer{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Existing run directories are added immediately;
// directories created later are picked up from the root's create events.
// Non-blocking; use Stop or cancel ctx to shut down.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.store.Root); err != nil {
		return err
	}
	labels, err := w.store.ListRuns()
	if err != nil {
		return err
	}
	for _, label := range labels {
		if err := w.watcher.Add(w.store.RunDir(label)); err != nil {
			w.logger.Warn("watch run dir", zap.String("run", label), zap.Error(err))
		}
	}
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	rel, err := filepath.Rel(w.store.Root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	// New run directory appearing directly under the root. Records may
	// land before the watch is in place, so catch up explicitly.
	if len(parts) == 1 && event.Op&fsnotify.Create != 0 {
		if err := w.watcher.Add(event.Name); err == nil {
			w.logger.Info("watching new run dir", zap.String("run", parts[0]))
		}
		if _, err := w.store.ReadRecords(parts[0]); err == nil {
			w.schedule(parts[0])
		}
		return
	}
	if len(parts) != 2 || parts[1] != "records.json" {
		return
	}
	w.schedule(parts[0])
}

func (w *Watcher) schedule(label string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[label]; ok {
		t.Stop()
	}
	w.timers[label] = time.AfterFunc(w.debounce, func() {
		w.summarize(label)
	})
}

func (w *Watcher) summarize(label string) {
	records, err := w.store.ReadRecords(label)
	if err != nil {
		w.logger.Warn("read records", zap.String("run", label), zap.Error(err))
		return
	}
	s := aggregate.Build(label, time.Now(), records)
	path, err := w.store.WriteSummary(label, []byte(report.BuildMarkdown(s)))
	if err != nil {
		w.logger.Error("write summary", zap.String("run", label), zap.Error(err))
		return
	}
	w.logger.Info("summary updated",
		zap.String("run", label),
		zap.Int("records", s.TotalRecords),
		zap.String("path", path))
}
