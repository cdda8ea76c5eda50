package webhookauth

import "go.uber.org/fx"

var Module = fx.Module("webhook.auth",
	fx.Provide(FromConfig),
	fx.Provide(NewAuthenticator),
)
