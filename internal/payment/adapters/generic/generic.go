// Package generic parses the provider-neutral callback body
// {providerRef, status, amount?, currency?, paymentMethod?, eventId?}.
package generic

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/staybook/internal/payment/domain"
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Provider() string {
	return "generic"
}

type notification struct {
	ProviderRef   string `json:"providerRef"`
	Status        string `json:"status"`
	Amount        *int64 `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
	EventID       string `json:"eventId"`
}

func (p *Parser) Parse(payload []byte) (*domain.Notification, error) {
	var body notification
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&body); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	body.ProviderRef = strings.TrimSpace(body.ProviderRef)
	body.Status = strings.TrimSpace(body.Status)
	if body.ProviderRef == "" || body.Status == "" {
		return nil, domain.ErrInvalidPayload
	}

	return &domain.Notification{
		ProviderRef:    body.ProviderRef,
		EventID:        strings.TrimSpace(body.EventID),
		ReportedStatus: body.Status,
		Amount:         body.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(body.Currency)),
		PaymentMethod:  strings.TrimSpace(body.PaymentMethod),
	}, nil
}
