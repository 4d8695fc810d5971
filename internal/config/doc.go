// Package config loads the immutable application configuration from a JSON
// file combined with environment variables. The JSON file declares devices,
// the admin allow-list, and MFA settings; secrets (bot token, device
// passwords, MFA master key) come exclusively from the environment.
package config
