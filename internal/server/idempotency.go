package server

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/staybook/internal/idempotency"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotentReplayedHeader = "Idempotent-Replayed"

	scopeCreateBooking = "bookings.create"

	ctxKeyFingerprint = "idempotency_fingerprint"

	idempotencySettleTimeout = 5 * time.Second
)

// responseCapture tees the response so it can be cached after the handler.
type responseCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseCapture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyRequired reserves the Idempotency-Key before the handler runs.
// A completed key replays the cached response byte for byte, a key reused
// with a different body is refused, and a key still running fails fast.
func (s *Server) IdempotencyRequired(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if err := idempotency.ValidateKey(key); err != nil {
			AbortWithError(c, err)
			return
		}

		body, err := readBody(c)
		if err != nil {
			AbortWithError(c, invalidRequestError("request body is too large or unreadable"))
			return
		}
		fingerprint, err := idempotency.Fingerprint(body)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(ctxKeyFingerprint, fingerprint)

		ctx := c.Request.Context()
		log := logger.WithContext(ctx, s.log)

		result, err := s.idempotency.Begin(ctx, scope, key, fingerprint)
		if err != nil {
			log.Error("idempotency begin failed", zap.String("scope", scope), zap.Error(err))
			AbortWithError(c, err)
			return
		}
		s.guardrails.IdempotencyOutcome(string(result.Outcome))

		switch result.Outcome {
		case idempotency.OutcomeReplay:
			cached := result.Cached
			c.Header(IdempotentReplayedHeader, "true")
			c.Data(cached.StatusCode, cached.ContentType, cached.Body)
			c.Abort()
			return
		case idempotency.OutcomeConflict:
			AbortWithError(c, errIdempotencyKeyReused)
			return
		case idempotency.OutcomeInProgress:
			AbortWithError(c, errIdempotencyInProgress)
			return
		}

		capture := &responseCapture{ResponseWriter: c.Writer}
		c.Writer = capture

		c.Next()

		// Render handler errors here so the cached bytes match what was sent.
		if !c.Writer.Written() {
			if lastErr := c.Errors.Last(); lastErr != nil {
				renderError(c, lastErr.Err)
			}
		}

		settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencySettleTimeout)
		defer cancel()

		status := c.Writer.Status()
		if cacheableStatus(status) {
			resp := idempotency.Response{
				StatusCode:  status,
				ContentType: c.Writer.Header().Get("Content-Type"),
				Body:        append([]byte(nil), capture.body.Bytes()...),
			}
			if err := s.idempotency.Complete(settleCtx, scope, key, fingerprint, resp); err != nil {
				log.Error("idempotency complete failed", zap.String("scope", scope), zap.Int("status", status), zap.Error(err))
			}
			return
		}
		if err := s.idempotency.Release(settleCtx, scope, key, fingerprint); err != nil {
			log.Error("idempotency release failed", zap.String("scope", scope), zap.Int("status", status), zap.Error(err))
		}
	}
}

// cacheableStatus is true for outcomes that a retry would reproduce exactly.
// Races, upstream failures and server errors stay retryable.
func cacheableStatus(status int) bool {
	return status == http.StatusCreated || status == http.StatusBadRequest
}
