package mikrotik

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/go-routeros/routeros/v3"

	"github.com/infraops/infrabot/internal/config"
)

const (
	dialTimeout     = 10 * time.Second
	defaultLogLimit = 20
)

// Client runs RouterOS API commands against a single configured device.
type Client struct {
	device config.Device
	tlsCfg *tls.Config
	log    *slog.Logger
}

// NewClient builds a client for the device. The device's CA certificate is
// loaded eagerly so misconfiguration surfaces at startup, not on first use.
func NewClient(device config.Device, log *slog.Logger) (*Client, error) {
	pem, err := os.ReadFile(device.TLSCert)
	if err != nil {
		return nil, errors.Join(ErrCertificate, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no PEM certificates in %s", ErrCertificate, device.TLSCert)
	}

	return &Client{
		device: device,
		tlsCfg: &tls.Config{
			RootCAs:    pool,
			ServerName: device.Host,
			MinVersion: tls.VersionTLS12,
		},
		log: log.With("device", device.Slug),
	}, nil
}

// Device returns the device this client talks to.
func (c *Client) Device() config.Device { return c.device }

// connect dials the API-SSL port, verifies the device certificate, and logs in.
func (c *Client) connect(ctx context.Context) (*routeros.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.device.Address())
	if err != nil {
		return nil, fmt.Errorf("mikrotik: dial %s: %w", c.device.Address(), err)
	}

	tlsConn := tls.Client(conn, c.tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mikrotik: tls handshake with %s: %w", c.device.Slug, err)
	}

	// The RouterOS client has no context support; cap the login exchange with
	// the connection deadline instead.
	if deadline, ok := ctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(deadline)
	}

	api, err := routeros.NewClient(tlsConn)
	if err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("mikrotik: api client for %s: %w", c.device.Slug, err)
	}
	if err := api.Login(c.device.Username, c.device.Password); err != nil {
		api.Close()
		return nil, fmt.Errorf("mikrotik: login to %s: %w", c.device.Slug, err)
	}
	return api, nil
}

// run executes a single command over a fresh connection.
func (c *Client) run(ctx context.Context, sentence ...string) (*routeros.Reply, error) {
	api, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer api.Close()

	reply, err := api.Run(sentence...)
	if err != nil {
		return nil, fmt.Errorf("mikrotik: %s on %s: %w", sentence[0], c.device.Slug, err)
	}
	return reply, nil
}

// Identity returns the router's configured name.
func (c *Client) Identity(ctx context.Context) (string, error) {
	reply, err := c.run(ctx, "/system/identity/print")
	if err != nil {
		return "", err
	}
	if len(reply.Re) == 0 {
		return "", ErrEmptyReply
	}
	return reply.Re[0].Map["name"], nil
}

// SystemResource returns CPU, memory, disk, uptime and version information.
func (c *Client) SystemResource(ctx context.Context) (Resource, error) {
	reply, err := c.run(ctx, "/system/resource/print")
	if err != nil {
		return Resource{}, err
	}
	if len(reply.Re) == 0 {
		return Resource{}, ErrEmptyReply
	}
	return parseResource(reply.Re[0].Map), nil
}

// Interfaces returns all interfaces with status and traffic counters.
func (c *Client) Interfaces(ctx context.Context) ([]Interface, error) {
	reply, err := c.run(ctx, "/interface/print")
	if err != nil {
		return nil, err
	}
	ifaces := make([]Interface, 0, len(reply.Re))
	for _, re := range reply.Re {
		ifaces = append(ifaces, parseInterface(re.Map))
	}
	return ifaces, nil
}

// Logs returns the newest limit entries of the router log, oldest first.
func (c *Client) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	reply, err := c.run(ctx, "/log/print")
	if err != nil {
		return nil, err
	}

	rows := reply.Re
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	entries := make([]LogEntry, 0, len(rows))
	for _, re := range rows {
		entries = append(entries, parseLogEntry(re.Map))
	}
	return entries, nil
}

// DHCPLeases returns all DHCP server leases.
func (c *Client) DHCPLeases(ctx context.Context) ([]Lease, error) {
	reply, err := c.run(ctx, "/ip/dhcp-server/lease/print")
	if err != nil {
		return nil, err
	}
	leases := make([]Lease, 0, len(reply.Re))
	for _, re := range reply.Re {
		leases = append(leases, parseLease(re.Map))
	}
	return leases, nil
}

// ServicesEnabled returns the IP services that are not disabled.
func (c *Client) ServicesEnabled(ctx context.Context) ([]Service, error) {
	reply, err := c.run(ctx, "/ip/service/print", "?disabled=false")
	if err != nil {
		return nil, err
	}
	services := make([]Service, 0, len(reply.Re))
	for _, re := range reply.Re {
		services = append(services, parseService(re.Map))
	}
	return services, nil
}

// CheckForUpdates triggers an update check and returns the package state.
func (c *Client) CheckForUpdates(ctx context.Context) (UpdateInfo, error) {
	api, err := c.connect(ctx)
	if err != nil {
		return UpdateInfo{}, err
	}
	defer api.Close()

	if _, err := api.Run("/system/package/update/check-for-updates"); err != nil {
		return UpdateInfo{}, fmt.Errorf("mikrotik: check-for-updates on %s: %w", c.device.Slug, err)
	}
	reply, err := api.Run("/system/package/update/print")
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("mikrotik: read update state on %s: %w", c.device.Slug, err)
	}
	if len(reply.Re) == 0 {
		return UpdateInfo{}, ErrEmptyReply
	}
	return parseUpdateInfo(reply.Re[0].Map), nil
}

// InstallUpdates downloads and installs pending updates. The router reboots
// on its own once installation finishes.
func (c *Client) InstallUpdates(ctx context.Context) error {
	c.log.Warn("installing RouterOS updates")
	_, err := c.run(ctx, "/system/package/update/install")
	return err
}

// Reboot reboots the router immediately.
func (c *Client) Reboot(ctx context.Context) error {
	c.log.Warn("rebooting router")
	_, err := c.run(ctx, "/system/reboot")
	return err
}
