package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// Span attributes that may identify a guest or carry a secret.
var forbiddenAttributeKeys = map[attribute.Key]struct{}{
	"guest_name":        {},
	"guest_email":       {},
	"guest_phone":       {},
	"webhook_secret":    {},
	"http.request.body": {},
	"idempotency_key":   {},
}

// SafeAttributes drops attributes that must never leave the process.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := forbiddenAttributeKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError keeps only the error type on the span; messages may echo input.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	type coded interface{ Code() string }
	var c coded
	if errors.As(err, &c) {
		return errors.New(c.Code())
	}
	return errors.New("request_failed")
}

func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
