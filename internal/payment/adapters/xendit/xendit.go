// Package xendit parses Xendit invoice callbacks.
package xendit

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
	return "xendit"
}

type invoiceCallback struct {
	ID            string      `json:"id"`
	ExternalID    string      `json:"external_id"`
	Status        string      `json:"status"`
	Amount        json.Number `json:"amount"`
	PaidAmount    json.Number `json:"paid_amount"`
	Currency      string      `json:"currency"`
	PaymentMethod string      `json:"payment_method"`
}

func (p *Parser) Parse(payload []byte) (*domain.Notification, error) {
	var body invoiceCallback
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	externalID := strings.TrimSpace(body.ExternalID)
	status := strings.TrimSpace(body.Status)
	if externalID == "" || status == "" {
		return nil, domain.ErrInvalidPayload
	}

	n := &domain.Notification{
		ProviderRef:    externalID,
		EventID:        strings.TrimSpace(body.ID),
		ReportedStatus: status,
		Currency:       strings.ToUpper(strings.TrimSpace(body.Currency)),
		PaymentMethod:  strings.TrimSpace(body.PaymentMethod),
	}

	amount := body.PaidAmount
	if amount == "" {
		amount = body.Amount
	}
	if amount != "" {
		v, err := amount.Int64()
		if err != nil {
			return nil, domain.ErrInvalidPayload
		}
		n.Amount = &v
	}
	return n, nil
}
