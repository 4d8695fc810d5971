package config

import "errors"

var (
	ErrParsingEnv        = errors.New("config: failed to parse environment variables")
	ErrReadingFile       = errors.New("config: failed to read config file")
	ErrNoAdmins          = errors.New("config: no admin_ids configured")
	ErrNoDevices         = errors.New("config: no mikrotik devices configured")
	ErrMissingPassword   = errors.New("config: missing device password environment variable")
	ErrCertNotFound      = errors.New("config: device TLS certificate not found")
	ErrMissingMFAKey     = errors.New("config: MFA_ENCRYPTION_KEY required when MFA is enabled")
	ErrDuplicateSlug     = errors.New("config: duplicate device slug")
	ErrInvalidSessionTTL = errors.New("config: session duration must be positive")
)
