package domain

import "strings"

// MapProviderStatus folds a provider's reported status into a terminal ledger
// status. Pending and unrecognised values return false and must not touch the
// ledger.
func MapProviderStatus(reported string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(reported)) {
	case "paid", "settled", "settlement", "success", "succeeded", "capture":
		return StatusPaid, true
	case "failed", "failure", "expired", "expire", "cancelled", "canceled", "cancel", "deny", "denied":
		return StatusFailed, true
	default:
		return "", false
	}
}
