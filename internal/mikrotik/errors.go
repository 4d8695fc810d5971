package mikrotik

import "errors"

var (
	// ErrDeviceNotFound indicates no configured device matches the slug.
	ErrDeviceNotFound = errors.New("mikrotik: device not found")

	// ErrEmptyReply indicates the router answered without any data rows.
	ErrEmptyReply = errors.New("mikrotik: empty reply")

	// ErrCertificate indicates the device CA certificate could not be loaded.
	ErrCertificate = errors.New("mikrotik: invalid CA certificate")
)
