package mikrotik

import (
	"fmt"
	"log/slog"

	"github.com/infraops/infrabot/internal/config"
)

// Manager holds a client per configured device, addressable by slug.
type Manager struct {
	clients map[string]*Client
	devices []config.Device
}

// NewManager builds clients for every configured device. Config order is
// preserved for device listings.
func NewManager(cfg *config.Config, log *slog.Logger) (*Manager, error) {
	m := &Manager{clients: make(map[string]*Client, len(cfg.Devices))}
	for _, device := range cfg.Devices {
		client, err := NewClient(device, log)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", device.Slug, err)
		}
		m.clients[device.Slug] = client
		m.devices = append(m.devices, device)
	}
	return m, nil
}

// Client returns the client for a device slug.
func (m *Manager) Client(slug string) (*Client, error) {
	client, ok := m.clients[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, slug)
	}
	return client, nil
}

// Devices lists configured devices in config order.
func (m *Manager) Devices() []config.Device { return m.devices }
