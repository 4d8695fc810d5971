// Package logger builds configured slog.Logger instances: JSON for production
// log shipping, text for local development, with optional static attributes
// applied to every record.
package logger
