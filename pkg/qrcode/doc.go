// Package qrcode renders QR codes for TOTP provisioning URIs, either as PNG
// bytes for export or as half-block ASCII art for terminal display during
// operator-driven enrollment.
package qrcode
