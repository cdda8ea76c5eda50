package webhookauth

import (
	"net/url"
	"strings"
)

const maskToken = "****"

// Redact removes every secret from msg, including URL-encoded forms that an
// upstream error may have echoed back.
func Redact(msg string, secrets ...string) string {
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, secret, maskToken)
		if escaped := url.QueryEscape(secret); escaped != secret {
			msg = strings.ReplaceAll(msg, escaped, maskToken)
		}
		if escaped := url.PathEscape(secret); escaped != secret {
			msg = strings.ReplaceAll(msg, escaped, maskToken)
		}
	}
	return msg
}
