package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"github.com/fleetrent/backend/internal/interfaces/http/dto"
)

// IdempotencyKeyHeader carries the caller-supplied key that makes a mutating
// request safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyOptions configures the idempotent request middleware.
type IdempotencyOptions struct {
	// Cache is the shared at-most-once execution guard. Required.
	Cache shared.RequestCache
	// Logger receives cache failures. Required.
	Logger *zap.Logger
	// Metrics records replayed requests. Optional.
	Metrics *telemetry.BusinessMetrics
}

// replayWriter buffers the response body so a completed execution can be
// recorded and later replayed verbatim.
type replayWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *replayWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *replayWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency returns a middleware that makes mutating requests carrying an
// Idempotency-Key header at-most-once. The key alone is authoritative: a
// retry with a different body still receives the first execution's cached
// response.
//
// Behavior per cache state:
//   - Fresh: the request executes normally; the response is recorded when the
//     outcome is settled (2xx or 4xx). Server faults (5xx) are not recorded,
//     so the caller may retry them with the same key.
//   - InProgress: a concurrent execution holds the key; the request is
//     rejected with 409 ERR_CONCURRENCY_CONFLICT without running the handler.
//   - Completed: the stored status and body are replayed verbatim.
//
// Reads (GET/HEAD) and requests without the header pass through untouched.
// A cache failure on Begin fails open: losing the replay guarantee for one
// request is preferable to refusing it.
func Idempotency(opts IdempotencyOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		fingerprint := c.Request.Method + " " + c.FullPath()

		result, err := opts.Cache.Begin(ctx, key, fingerprint)
		if err != nil {
			opts.Logger.Error("idempotency cache begin failed, executing without replay guard",
				zap.String("idempotency_key", key),
				zap.String("fingerprint", fingerprint),
				zap.Error(err))
			c.Next()
			return
		}

		switch result.State {
		case shared.BeginStateCompleted:
			if opts.Metrics != nil {
				opts.Metrics.RecordRequestReplay(ctx, c.FullPath())
			}
			c.Header("Idempotency-Replayed", "true")
			c.Data(result.CachedStatus, "application/json; charset=utf-8", result.CachedBody)
			c.Abort()
			return

		case shared.BeginStateInProgress:
			requestID := getRequestIDFromContext(c)
			resp := dto.NewErrorResponseWithRequestID(
				dto.ErrCodeConcurrencyConflict,
				"A request with this idempotency key is still being processed",
				requestID,
			)
			c.AbortWithStatusJSON(http.StatusConflict, resp)
			return
		}

		// Fresh: execute with a buffering writer so the settled response can
		// be recorded for replay.
		writer := &replayWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status >= http.StatusOK && status < http.StatusInternalServerError {
			if err := opts.Cache.Complete(ctx, key, status, writer.body.Bytes()); err != nil {
				opts.Logger.Error("idempotency cache complete failed",
					zap.String("idempotency_key", key),
					zap.Int("status", status),
					zap.Error(err))
			}
		}
	}
}
