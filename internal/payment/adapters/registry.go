package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/staybook/internal/payment/domain"
)

// Registry maps a provider name to the parser for its callback format.
type Registry struct {
	parsers map[string]domain.NotificationParser
}

func NewRegistry(parsers ...domain.NotificationParser) *Registry {
	registry := &Registry{parsers: map[string]domain.NotificationParser{}}
	for _, parser := range parsers {
		if parser == nil {
			continue
		}
		provider := normalize(parser.Provider())
		if provider == "" {
			continue
		}
		registry.parsers[provider] = parser
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.parsers[normalize(provider)]
	return ok
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Parse(provider string, payload []byte) (*domain.Notification, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	parser, ok := r.parsers[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	n, err := parser.Parse(payload)
	if err != nil {
		return nil, err
	}
	n.Provider = provider
	return n, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
