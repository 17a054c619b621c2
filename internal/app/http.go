package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"confirmbot/internal/reminder"
	"confirmbot/internal/store"
)

// StatusSource is the read side of the reminder state shown on /status.
type StatusSource interface {
	Snapshot() reminder.State
	Dirty() bool
}

// Estimator reports the next reminder date.
type Estimator interface {
	NextFireEstimate() reminder.Estimate
}

// HTTPDeps are the pieces the HTTP surface reads from.
type HTTPDeps struct {
	State   StatusSource
	Clock   Estimator
	Store   store.Store
	Metrics http.Handler
	// Webhook is mounted at /telegram/webhook when set.
	Webhook http.Handler
	Logger  *slog.Logger
}

type statusResponse struct {
	Subscribers  int     `json:"subscribers"`
	IntervalDays int     `json:"interval_days"`
	LastReminder *string `json:"last_reminder"`
	NextReminder *string `json:"next_reminder"`
	DaysLeft     *int    `json:"days_left"`
	DueNow       bool    `json:"due_now"`
	Store        string  `json:"store"`
	PendingSave  bool    `json:"pending_save"`
}

// NewRouter builds the gin engine serving health, status, metrics and the optional webhook.
func NewRouter(d HTTPDeps) *gin.Engine {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log.With(slog.String("component", "http"))))

	r.GET("/healthz", func(c *gin.Context) {
		if p, ok := d.Store.(store.Pinger); ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, buildStatus(d))
	})

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	if d.Webhook != nil {
		r.POST("/telegram/webhook", gin.WrapH(d.Webhook))
	}
	return r
}

func buildStatus(d HTTPDeps) statusResponse {
	st := d.State.Snapshot()
	resp := statusResponse{
		Subscribers:  st.Subscribers.Len(),
		IntervalDays: st.IntervalDays,
		LastReminder: st.LastFired,
		PendingSave:  d.State.Dirty(),
	}
	if d.Store != nil {
		resp.Store = d.Store.Name()
	}
	if est := d.Clock.NextFireEstimate(); est.Known {
		next := est.NextDate.String()
		left := est.DaysLeft
		resp.NextReminder = &next
		resp.DaysLeft = &left
		resp.DueNow = est.DueNow
	}
	return resp
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("dur", time.Since(start)),
		)
	}
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
