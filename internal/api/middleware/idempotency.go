package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/bmptec/ledger-core/internal/api/problem"
	"github.com/bmptec/ledger-core/internal/idempotency"
	"github.com/bmptec/ledger-core/internal/observability"
	"go.uber.org/zap"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "X-Idempotent-Replay"
	maxKeyedBody      = 1 << 20
)

// IdempotencyMiddleware requires an Idempotency-Key on money movement
// requests. The first request with a key runs; repeats with the same body get
// the stored response back, a different body under the same key is a 409.
// Server errors carrying Retry-After are not stored and free the key.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				observability.IncrementIdempotencyEvent("missing_key")
				idempotencyProblem(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxKeyedBody))
			if err != nil {
				idempotencyProblem(w, r, http.StatusBadRequest, "request/invalid-body", "failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			req, err := idempotency.NewRequest(key, r.Method, r.URL.Path, body)
			if err != nil {
				observability.IncrementIdempotencyEvent("invalid_key")
				idempotencyProblem(w, r, http.StatusBadRequest, "idempotency/invalid-key", "Idempotency-Key must be 1 to 128 visible ASCII characters")
				return
			}

			rec, err := store.Begin(r.Context(), req)
			switch {
			case errors.Is(err, idempotency.ErrHashMismatch):
				observability.IncrementIdempotencyEvent("hash_mismatch")
				idempotencyProblem(w, r, http.StatusConflict, "idempotency/key-conflict", "Idempotency-Key was already used with a different request")
				return
			case err != nil:
				observability.IncrementIdempotencyEvent("unavailable")
				logger.Warn("idempotency key could not be settled",
					zap.String("trace_id", TraceIDFromContext(r.Context())), zap.Error(err))
				idempotencyProblem(w, r, http.StatusConflict, "idempotency/in-progress", "a request with this Idempotency-Key is still being processed")
				return
			case rec != nil:
				observability.IncrementIdempotencyEvent("replay")
				replay(w, rec)
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			contentType := capture.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			if capture.status == 0 {
				capture.status = http.StatusOK
			}
			if retryable(capture) {
				// The outcome is unknown; the retry must run again.
				if err := store.Release(r.Context(), req); err != nil {
					observability.IncrementIdempotencyEvent("release_error")
					logger.Error("idempotency key not released", zap.String("key", key), zap.Error(err))
					return
				}
				observability.IncrementIdempotencyEvent("released")
				return
			}
			if _, err := store.Finish(r.Context(), req, capture.status, capture.body.Bytes(), contentType); err != nil {
				observability.IncrementIdempotencyEvent("finalize_error")
				logger.Error("idempotent response not stored", zap.String("key", key), zap.Error(err))
				return
			}
			observability.IncrementIdempotencyEvent("finalized")
		})
	}
}

func retryable(c *responseCapture) bool {
	return c.status >= http.StatusInternalServerError && c.Header().Get("Retry-After") != ""
}

func idempotencyProblem(w http.ResponseWriter, r *http.Request, status int, slug, detail string) {
	problem.Write(w, r, status, problem.Type(slug), http.StatusText(status), detail)
}

type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func replay(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set(replayHeader, rec.Source)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
