// Package midtrans parses Midtrans HTTP notifications.
package midtrans

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/smallbiznis/staybook/internal/payment/domain"
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Provider() string {
	return "midtrans"
}

type notification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	PaymentType       string `json:"payment_type"`
}

func (p *Parser) Parse(payload []byte) (*domain.Notification, error) {
	var body notification
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	orderID := strings.TrimSpace(body.OrderID)
	status := strings.ToLower(strings.TrimSpace(body.TransactionStatus))
	if orderID == "" || status == "" {
		return nil, domain.ErrInvalidPayload
	}

	// A card capture flagged for review is not settled yet.
	if status == "capture" && strings.EqualFold(strings.TrimSpace(body.FraudStatus), "challenge") {
		status = "challenge"
	}

	n := &domain.Notification{
		ProviderRef:    orderID,
		EventID:        strings.TrimSpace(body.TransactionID),
		ReportedStatus: status,
		Currency:       strings.ToUpper(strings.TrimSpace(body.Currency)),
		PaymentMethod:  strings.TrimSpace(body.PaymentType),
	}
	if raw := strings.TrimSpace(body.GrossAmount); raw != "" {
		amount, err := wholeAmount(raw)
		if err != nil {
			return nil, domain.ErrInvalidPayload
		}
		n.Amount = &amount
	}
	return n, nil
}

// wholeAmount parses "150000.00" style amounts; fractional values are rejected.
func wholeAmount(raw string) (int64, error) {
	whole, frac, _ := strings.Cut(raw, ".")
	if strings.Trim(frac, "0") != "" {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
