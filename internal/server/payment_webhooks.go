package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type webhookResponse struct {
	Status        string `json:"status"`
	Outcome       string `json:"outcome"`
	ProviderRef   string `json:"providerRef,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// HandlePaymentWebhook is the only route that finalizes a payment. The
// provider comes from the path, or PAYMENT_PROVIDER when absent.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError("request body is too large or unreadable"))
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), c.Param("provider"), c.Request.Header, payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, webhookResponse{
		Status:        "ok",
		Outcome:       result.Outcome,
		ProviderRef:   result.ProviderRef,
		PaymentStatus: string(result.Status),
	})
}
