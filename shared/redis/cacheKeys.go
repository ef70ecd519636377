package redis

import (
	"strings"
)

var (
	App     = "scgw" // project code
	Env     = "dev"  // dev|stg|prod
	Version = "v1"   // schema version for easy bust
)

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

func pfx() string {
	return join(App, Env, Version)
}

func NormalizeAddress(addr string) string { return strings.ToLower(addr) }

// PendingStatusKey mirrors a track's in-flight request label.
func PendingStatusKey(trackID string) string {
	return join(pfx(), "pending", trackID)
}

// ActionKey stores a journaled action snapshot by its command id.
func ActionKey(commandID string) string {
	return join(pfx(), "action", commandID)
}

// WalletPreferenceKey stores an account's preferred display wallet.
func WalletPreferenceKey(account string) string {
	return join(pfx(), "wallet-pref", NormalizeAddress(account))
}
