package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/oguzcantas/benchsum/internal/report"
	"github.com/oguzcantas/benchsum/internal/store"
	"github.com/oguzcantas/benchsum/internal/verify"
	"github.com/oguzcantas/benchsum/pkg/types"
)

type Config struct {
	Store           store.Store
	CacheTTLSeconds int
}

// NewMux builds the read-only HTTP API over the runs root:
//
//	GET /healthz
//	GET /runs
//	GET /runs/{label}/summary
//	GET /runs/{label}/verify
func NewMux(cfg Config, logger *zap.Logger) *http.ServeMux {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		cfg:    cfg,
		logger: logger,
		cache:  newSummaryCache(time.Duration(cfg.CacheTTLSeconds) * time.Second),
		group:  &singleflight.Group{},
	}
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", HealthHandler())
	mux.HandleFunc("GET /runs", h.listRuns)
	mux.HandleFunc("GET /runs/{label}/summary", h.getSummary)
	mux.HandleFunc("GET /runs/{label}/verify", h.verifyRun)
	return mux
}

// HealthHandler returns an HTTP handler for liveness and readiness probes.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

type handler struct {
	cfg    Config
	logger *zap.Logger
	cache  *summaryCache
	group  *singleflight.Group
}

func (h *handler) listRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := h.cfg.Store.ListRuns()
	if err != nil {
		h.logger.Error("list runs", zap.Error(err))
		http.Error(w, "list runs failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []string{}
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (h *handler) getSummary(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	s, err := h.loadSummary(label)
	if err != nil {
		h.summaryError(w, label, err)
		return
	}
	writeJSON(w, s)
}

func (h *handler) verifyRun(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	opts := verify.Options{SummaryPath: h.cfg.Store.SummaryPath(label)}
	// Cross-check against raw records only when the run still has them.
	if _, err := os.Stat(h.cfg.Store.RecordsPath(label)); err == nil {
		opts.RecordsPath = h.cfg.Store.RecordsPath(label)
	}
	rep := verify.Run(opts)
	if rep.ExitCode == verify.ExitMissing {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, rep)
}

// loadSummary parses a run's summary.md, memoized for the cache TTL.
// Concurrent requests for the same label share one parse.
func (h *handler) loadSummary(label string) (types.Summary, error) {
	if s, ok := h.cache.get(label, time.Now()); ok {
		return s, nil
	}
	v, err, _ := h.group.Do(label, func() (any, error) {
		if s, ok := h.cache.get(label, time.Now()); ok {
			return s, nil
		}
		s, err := report.ReadSummary(h.cfg.Store.SummaryPath(label))
		if err != nil {
			return types.Summary{}, err
		}
		h.cache.put(label, s, time.Now())
		return s, nil
	})
	if err != nil {
		return types.Summary{}, err
	}
	return v.(types.Summary), nil
}

func (h *handler) summaryError(w http.ResponseWriter, label string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	h.logger.Error("load summary", zap.String("run", label), zap.Error(err))
	http.Error(w, "summary unreadable", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
