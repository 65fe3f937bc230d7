package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/pullhook/internal/config"
	"github.com/mattjoyce/pullhook/internal/gitsync"
	"github.com/mattjoyce/pullhook/internal/history"
	"github.com/mattjoyce/pullhook/internal/log"
	"github.com/mattjoyce/pullhook/internal/metrics"
)

// Router decides what an authenticated delivery should do. It keeps no
// state between deliveries; metrics and history are write-only side
// channels.
type Router struct {
	cfg     config.Config
	runner  gitsync.Runner
	metrics *metrics.Metrics
	history *history.Ring
	logger  *slog.Logger
}

// NewRouter builds a router. runner must already serialize calls (see
// gitsync.Serial); m and h may be nil.
func NewRouter(cfg config.Config, runner gitsync.Runner, m *metrics.Metrics, h *history.Ring, logger *slog.Logger) *Router {
	return &Router{
		cfg:     cfg,
		runner:  runner,
		metrics: m,
		history: h,
		logger:  logger,
	}
}

// Route classifies a delivery by its event header and returns the HTTP
// status and the value to serialize as the JSON response body.
func (rt *Router) Route(ctx context.Context, header http.Header, body []byte) (int, any) {
	event := header.Get(EventHeader)
	delivery := header.Get(DeliveryHeader)

	switch event {
	case EventPing:
		rt.logger.Info("ping received", "delivery", delivery)
		return http.StatusOK, PongResponse{Status: "pong"}
	case EventPush:
		return rt.routePush(ctx, delivery, body)
	default:
		rt.logger.Info("event ignored", "event", event, "delivery", delivery)
		return http.StatusOK, IgnoredResponse{Status: "ignored", Event: event}
	}
}

func (rt *Router) routePush(ctx context.Context, delivery string, body []byte) (int, any) {
	ev, err := parsePushEvent(body)
	if err != nil {
		rt.logger.Warn("push payload rejected", "delivery", delivery, "error", err)
		return http.StatusBadRequest, ErrorResponse{Error: "invalid JSON"}
	}

	if ev.Ref != rt.cfg.WatchedRef() {
		rt.logger.Info("push skipped",
			"ref", ev.Ref,
			"watched", rt.cfg.WatchedRef(),
			"delivery", delivery,
		)
		return http.StatusOK, SkippedResponse{Status: "skipped", Ref: ev.Ref}
	}

	syncID := uuid.NewString()
	logger := log.WithSync(rt.logger, syncID)
	logger.Info("push received",
		"ref", ev.Ref,
		"pusher", ev.Pusher,
		"commits", ev.Commits,
		"after", ev.After,
		"delivery", delivery,
	)

	started := time.Now()
	rt.metrics.SyncStarted()
	res := rt.runner.Run(ctx, rt.cfg.RepoPath, rt.cfg.Branch)
	elapsed := time.Since(started)
	rt.metrics.SyncFinished(string(res.Outcome), res.Duration)

	logger.Info("sync finished",
		"ok", res.OK,
		"outcome", res.Outcome,
		"duration_ms", res.Duration.Milliseconds(),
		"waited_ms", (elapsed - res.Duration).Milliseconds(),
	)

	entry := history.Entry{
		ID:            syncID,
		At:            started.UTC(),
		DeliveryID:    delivery,
		Ref:           ev.Ref,
		After:         ev.After,
		Pusher:        ev.Pusher,
		Commits:       ev.Commits,
		PayloadDigest: history.Digest(body),
		OK:            res.OK,
		Outcome:       string(res.Outcome),
		DurationMS:    res.Duration.Milliseconds(),
	}
	if !res.OK {
		entry.Stderr = res.Stderr
	}
	rt.history.Record(entry)

	if !res.OK {
		return http.StatusInternalServerError, res
	}
	return http.StatusOK, res
}
