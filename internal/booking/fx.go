package booking

import (
	"github.com/smallbiznis/staybook/internal/booking/repository"
	"github.com/smallbiznis/staybook/internal/booking/service"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(NewGuard),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

// NewGuard binds the deploy-time role to the hot-reloadable brand modes.
func NewGuard(cfg config.Config, holder *config.BookingConfigHolder) (*writerlock.Guard, error) {
	role, err := writerlock.ParseRole(cfg.Role)
	if err != nil {
		return nil, err
	}
	return writerlock.NewGuard(role, holder), nil
}
