package channelmanager

import (
	"github.com/smallbiznis/staybook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("channel.manager",
	fx.Provide(NewClient),
)

func NewClient(cfg config.Config, log *zap.Logger) Client {
	cm := cfg.ChannelManager
	if cm.Driver == config.ChannelManagerDriverHTTP {
		log.Info("channel manager driver", zap.String("driver", cm.Driver), zap.String("base_url", cm.BaseURL), zap.Duration("timeout", cm.Timeout))
		return NewHTTPClient(cm.BaseURL, cm.APIKey, cm.Timeout)
	}
	log.Warn("channel manager running in sandbox mode; bookings are not sent upstream")
	return NewSandbox()
}
