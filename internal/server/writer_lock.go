package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/brand"
	obscontext "github.com/smallbiznis/staybook/internal/observability/context"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"go.uber.org/zap"
)

// WriterLockRequired rejects booking writes this role is not designated for.
// Only the brand field is read from the body; the body is restored for the
// handlers that follow.
func (s *Server) WriterLockRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBody(c)
		if err != nil {
			AbortWithError(c, invalidRequestError("request body is too large or unreadable"))
			return
		}

		var peek struct {
			Brand *string `json:"brand"`
		}
		if err := json.Unmarshal(body, &peek); err != nil {
			AbortWithError(c, invalidRequestError("request body must be a JSON object"))
			return
		}
		if peek.Brand == nil || strings.TrimSpace(*peek.Brand) == "" {
			verr := &bookingdomain.ValidationError{}
			verr.Add("brand", "required", "brand is required")
			AbortWithError(c, verr)
			return
		}

		b, err := brand.Parse(*peek.Brand)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: %q", bookingdomain.ErrInvalidBrand, *peek.Brand))
			return
		}

		ctx := obscontext.WithBrand(c.Request.Context(), b.String())
		c.Request = c.Request.WithContext(ctx)

		if err := s.guard.Check(b); err != nil {
			var violation *writerlock.ViolationError
			if errors.As(err, &violation) {
				s.guardrails.WriterLockViolation(violation.Brand.String(), string(violation.Mode))
				logger.WithContext(ctx, s.log).Warn("writer lock violation",
					zap.String("mode", string(violation.Mode)),
					zap.String("designated_writer", string(violation.DesignatedWriter)),
					zap.String("rejected_by", string(violation.RejectedBy)),
					zap.String("table_version", writerlock.TableVersion),
				)
			} else {
				logger.WithContext(ctx, s.log).Error("writer lock check failed", zap.Error(err))
			}
			AbortWithError(c, err)
			return
		}

		c.Next()
	}
}

type brandAuthority struct {
	Brand            string `json:"brand"`
	Mode             string `json:"mode"`
	DesignatedWriter string `json:"designatedWriter"`
	IsWriter         bool   `json:"isWriter"`
	MinNights        int    `json:"minNights"`
	MaxNights        int    `json:"maxNights"`
}

type writerLockResponse struct {
	Role         string                  `json:"role"`
	TableVersion string                  `json:"tableVersion"`
	Table        []writerlock.Assignment `json:"table"`
	Brands       []brandAuthority        `json:"brands"`
}

// GetWriterLock lets operators confirm both deployments agree on authority.
func (s *Server) GetWriterLock(c *gin.Context) {
	cfg := s.bookingConfig.Get()
	role := s.guard.Role()

	resp := writerLockResponse{
		Role:         string(role),
		TableVersion: writerlock.TableVersion,
		Table:        writerlock.Table(),
		Brands:       make([]brandAuthority, 0, len(cfg.Brands)),
	}
	for _, b := range brand.All() {
		policy, ok := cfg.Brands[b]
		if !ok {
			continue
		}
		writer, _ := writerlock.DesignatedWriter(policy.Mode)
		resp.Brands = append(resp.Brands, brandAuthority{
			Brand:            b.String(),
			Mode:             string(policy.Mode),
			DesignatedWriter: string(writer),
			IsWriter:         writer == role,
			MinNights:        policy.Stay.MinNights,
			MaxNights:        policy.Stay.MaxNights,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// readBody buffers the request body once and puts it back for later readers.
func readBody(c *gin.Context) ([]byte, error) {
	if cached, ok := c.Get(ctxKeyRawBody); ok {
		if body, ok := cached.([]byte); ok {
			return body, nil
		}
	}
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	c.Set(ctxKeyRawBody, body)
	return body, nil
}

const ctxKeyRawBody = "raw_body"
