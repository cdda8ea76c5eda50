package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
)

// InitiatePayment opens a PENDING ledger entry. Only a webhook can finalize it.
func (s *Server) InitiatePayment(c *gin.Context) {
	var req paymentdomain.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError("request body does not match the payment schema"))
		return
	}
	req.BookingID = c.Param("id")

	entry, err := s.paymentSvc.Initiate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (s *Server) GetPayment(c *gin.Context) {
	entry, err := s.paymentSvc.GetByProviderRef(c.Request.Context(), c.Param("providerRef"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (s *Server) ListPaymentDeliveries(c *gin.Context) {
	deliveries, err := s.paymentSvc.ListDeliveries(c.Request.Context(), c.Param("providerRef"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if deliveries == nil {
		deliveries = []paymentdomain.WebhookDelivery{}
	}

	c.JSON(http.StatusOK, gin.H{"data": deliveries})
}
