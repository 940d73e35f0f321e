package oauth

import (
	"fmt"
	"log/slog"
	"time"
)

const redacted = "[REDACTED]"

// String describes the token without its credentials, so a Token passed to a
// formatting verb by mistake never leaks.
func (t Token) String() string {
	return fmt.Sprintf("oauth.Token{Kind: %s, AccessToken: %s, ExpiresAt: %s, Scope: %d, RefreshToken: %t}",
		t.Kind, redacted, t.ExpiresAt.Format(time.RFC3339), len(t.Scope), t.RefreshToken != "")
}

// GoString handles %#v the same way.
func (t Token) GoString() string {
	return t.String()
}

// LogValue implements slog.LogValuer with metadata only.
func (t Token) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(t.Kind)),
		slog.Time("expires_at", t.ExpiresAt),
		slog.Int("scopes", len(t.Scope)),
		slog.Bool("refreshable", t.RefreshToken != ""),
	)
}
