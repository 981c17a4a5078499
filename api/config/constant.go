package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ProdDBMarker appears in the host name of the production database.
	ProdDBMarker = "billing-prod"

	// DefaultSignatureHeader carries the hex HMAC of the raw webhook body.
	DefaultSignatureHeader = "X-Provider-Signature"

	DefaultEmailFrom = "onboarding@resend.dev"

	DefaultProviderTimeout = 10 * time.Second
	DefaultNotifyTimeout   = 15 * time.Second
	DefaultNotifyWorkers   = 8
)

// CheckNotProdDB returns an error when databaseURL points at production.
// Destructive commands call it before touching the schema.
func CheckNotProdDB(databaseURL string) error {
	if strings.TrimSpace(databaseURL) == "" {
		return fmt.Errorf("database URL is not configured")
	}
	if strings.Contains(strings.ToLower(databaseURL), ProdDBMarker) {
		return fmt.Errorf("refusing to run against production database (%s)", ProdDBMarker)
	}
	return nil
}
