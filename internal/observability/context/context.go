package context

import "context"

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	roleKey      ctxKey = "service_role"
	brandKey     ctxKey = "brand"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithRole records which deployment handled the request.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}

func WithBrand(ctx context.Context, brand string) context.Context {
	return context.WithValue(ctx, brandKey, brand)
}

func BrandFromContext(ctx context.Context) string {
	v, _ := ctx.Value(brandKey).(string)
	return v
}
