package license

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
)

// logAction logs a guard action with structured attributes
func (g *Guard) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	all := []slog.Attr{
		slog.String("action", action),
	}
	all = append(all, attrs...)
	g.logger.LogAttrs(ctx, level, result, all...)
}

func (g *Guard) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	g.logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func (g *Guard) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	g.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func (g *Guard) logError(ctx context.Context, action, result string, attrs ...slog.Attr) {
	g.logAction(ctx, slog.LevelError, action, result, attrs...)
}

// maskLicenseKey masks the bulk of a key so logs never carry usable keys
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// hashLicenseKey returns a short hash of the key for audit correlation
func hashLicenseKey(key string) string {
	if key == "" {
		return ""
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)[:16]
}
