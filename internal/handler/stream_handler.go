package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/finanzen-bfa-go/internal/service"
)

func snapshotHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/snapshot")
		defer span.End()

		snap, err := views.Snapshot(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func dashboardHandler(views *service.Views, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		dash, err := views.Dashboard(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, dash)
	}
}

// streamHandler pushes a "dashboard" server-sent event with the current
// aggregates and another after every change. A slow client only ever
// receives the latest dashboard; intermediate ones are dropped. Every
// heartbeat refreshes the session expiry. The stream ends when the session
// is closed so the client reconnects to a fresh one.
func streamHandler(views *service.Views, heartbeat time.Duration, done <-chan struct{}, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := UserIDFromContext(ctx)

		rc := http.NewResponseController(w)
		updates := make(chan *service.Dashboard, 1)
		stop, sessionDone, err := views.Watch(ctx, userID, func(d *service.Dashboard) {
			for {
				select {
				case updates <- d:
					return
				default:
				}
				select {
				case <-updates:
				default:
				}
			}
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		defer stop()

		// The server's WriteTimeout would otherwise cut the stream.
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			logger.Debug("stream: write deadline not adjustable", zap.Error(err))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			logger.Warn("stream: flushing not supported", zap.Error(err))
			return
		}

		logger.Info("stream opened", zap.String("user_id", userID))
		defer logger.Info("stream closed", zap.String("user_id", userID))

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-sessionDone:
				logger.Debug("stream: session ended", zap.String("user_id", userID))
				return
			case <-ticker.C:
				views.Touch(userID)
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
			case d := <-updates:
				payload, err := json.Marshal(d)
				if err != nil {
					logger.Error("stream: encode dashboard", zap.Error(err))
					continue
				}
				if _, err := fmt.Fprintf(w, "event: dashboard\ndata: %s\n\n", payload); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
