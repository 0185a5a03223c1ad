package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/expiry/internal/logger"
)

// slowRequestThreshold marks a request as slow in the logs and counters.
const slowRequestThreshold = 2 * time.Second

// requestLogger logs each request once it completes and feeds the HTTP
// error counters behind the log_errors_total and log_warnings_total metrics.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", elapsed),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		}

		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
			logger.Logger.Error("request failed", attrs...)
		case status >= 400:
			logger.WarnHttp4xx(status)
			logger.Debug("request rejected", attrs...)
		default:
			logger.Debug("request", attrs...)
		}
		if elapsed > slowRequestThreshold {
			logger.WarnSlowRequest()
			logger.Logger.Warn("slow request", attrs...)
		}
	})
}
