package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload" // Load .env file automatically

	"github.com/infraops/infrabot/pkg/slug"
)

// Device is a single MikroTik router reachable over the RouterOS API-SSL port.
type Device struct {
	Name     string
	Slug     string
	Host     string
	Port     int
	Username string
	Password string
	TLSCert  string
}

// Address returns the host:port dial target for the device.
func (d Device) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// MFA holds the multi-factor-authentication settings.
type MFA struct {
	Enabled       bool
	SessionTTL    time.Duration
	DBPath        string
	EncryptionKey []byte
}

// Config is the immutable application configuration snapshot.
type Config struct {
	TelegramToken string
	AdminIDs      map[int64]struct{}
	Devices       []Device
	MFA           MFA
}

// IsAdmin reports whether the Telegram user ID is on the allow-list.
func (c *Config) IsAdmin(id int64) bool {
	_, ok := c.AdminIDs[id]
	return ok
}

// Device returns the device with the given slug.
func (c *Config) Device(s string) (Device, bool) {
	for _, d := range c.Devices {
		if d.Slug == s {
			return d, true
		}
	}
	return Device{}, false
}

const (
	defaultAPIPort    = 8729 // RouterOS api-ssl
	defaultSessionTTL = 15 * time.Minute
	defaultDBPath     = "/data/mfa.db"
)

type envConfig struct {
	TelegramToken    string `env:"TELEGRAM_BOT_TOKEN,required"`
	MFAEncryptionKey string `env:"MFA_ENCRYPTION_KEY"`
	CertsDir         string `env:"MIKROTIK_CERTS_DIR" envDefault:"/app/certs"`
}

// fileConfig mirrors the JSON config file layout.
type fileConfig struct {
	Telegram struct {
		AdminIDs []int64 `json:"admin_ids"`
	} `json:"telegram"`
	Devices struct {
		MikroTik []fileDevice `json:"mikrotik"`
	} `json:"devices"`
	MFA struct {
		Enabled                *bool  `json:"enabled"`
		SessionDurationMinutes int    `json:"session_duration_minutes"`
		DBPath                 string `json:"db_path"`
	} `json:"mfa"`
}

type fileDevice struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	SSLCert  string `json:"ssl_cert"`
}

// Load reads the JSON config at path and merges in environment variables.
// Each device password comes from MIKROTIK_<SLUG>_PASSWORD.
func Load(path string) (*Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return nil, errors.Join(ErrParsingEnv, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrReadingFile, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, errors.Join(ErrReadingFile, err)
	}

	if len(fc.Telegram.AdminIDs) == 0 {
		return nil, ErrNoAdmins
	}
	admins := make(map[int64]struct{}, len(fc.Telegram.AdminIDs))
	for _, id := range fc.Telegram.AdminIDs {
		admins[id] = struct{}{}
	}

	baseDir := filepath.Dir(path)
	devices := make([]Device, 0, len(fc.Devices.MikroTik))
	seen := make(map[string]struct{})
	for _, fd := range fc.Devices.MikroTik {
		s := slug.Make(fd.Name)
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSlug, s)
		}
		seen[s] = struct{}{}

		password := os.Getenv(passwordEnvKey(s))
		if password == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingPassword, passwordEnvKey(s))
		}

		cert := resolveCertPath(fd.SSLCert, s, baseDir, ec.CertsDir)
		if _, err := os.Stat(cert); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrCertNotFound, fd.Name, cert)
		}

		port := fd.Port
		if port == 0 {
			port = defaultAPIPort
		}

		devices = append(devices, Device{
			Name:     fd.Name,
			Slug:     s,
			Host:     fd.Host,
			Port:     port,
			Username: fd.Username,
			Password: password,
			TLSCert:  cert,
		})
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	mfa, err := loadMFA(fc, ec)
	if err != nil {
		return nil, err
	}

	return &Config{
		TelegramToken: ec.TelegramToken,
		AdminIDs:      admins,
		Devices:       devices,
		MFA:           mfa,
	}, nil
}

func loadMFA(fc fileConfig, ec envConfig) (MFA, error) {
	enabled := true
	if fc.MFA.Enabled != nil {
		enabled = *fc.MFA.Enabled
	}

	ttl := defaultSessionTTL
	if fc.MFA.SessionDurationMinutes != 0 {
		if fc.MFA.SessionDurationMinutes < 0 {
			return MFA{}, ErrInvalidSessionTTL
		}
		ttl = time.Duration(fc.MFA.SessionDurationMinutes) * time.Minute
	}

	dbPath := fc.MFA.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	var key []byte
	if enabled {
		if ec.MFAEncryptionKey == "" {
			return MFA{}, ErrMissingMFAKey
		}
		key = []byte(ec.MFAEncryptionKey)
	}

	return MFA{
		Enabled:       enabled,
		SessionTTL:    ttl,
		DBPath:        dbPath,
		EncryptionKey: key,
	}, nil
}

// passwordEnvKey returns the environment variable name holding the password
// for a device slug, e.g. MIKROTIK_MAIN_ROUTER_PASSWORD.
func passwordEnvKey(s string) string {
	return "MIKROTIK_" + strings.ToUpper(s) + "_PASSWORD"
}

// resolveCertPath supports three cert spellings: absolute paths are used
// as-is, paths containing a directory are resolved against the config file
// location, and bare filenames are looked up in the certs directory. An empty
// value defaults to <slug>.crt in the certs directory.
func resolveCertPath(cert, s, baseDir, certsDir string) string {
	if cert == "" {
		cert = s + ".crt"
	}
	if filepath.IsAbs(cert) {
		return cert
	}
	if strings.Contains(cert, "/") {
		return filepath.Join(baseDir, cert)
	}
	return filepath.Join(certsDir, cert)
}
