// Package logging provides subsystem-tagged structured logging for farmfield.
//
// It is a thin layer over log/slog. Every entry carries a "subsystem"
// attribute (e.g. "TokenCache", "AuthClient", "FieldClient") so output
// from the credential, network and projection layers can be filtered.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("AuthClient", "acquired %s token (expires %s)", kind, expiry)
//	logging.Error("FieldClient", err, "boundary fetch failed for %s", fieldID)
//
// Token values must never be passed to these helpers. Log the token kind,
// expiry and scope count instead.
package logging
