package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/infraops/infrabot/internal/mikrotik"
)

// simpleCommand is a read-only router query: the command shows a device
// keyboard and the callback fetches and formats the data.
type simpleCommand struct {
	name        string
	description string
	fetch       func(ctx context.Context, client *mikrotik.Client, identity string) (string, error)
}

// sensitiveCommand is a destructive router operation. It is MFA-gated at
// command time, asks for confirmation after device selection, and the MFA
// session is rechecked when the user confirms.
type sensitiveCommand struct {
	name        string
	description string
	confirm     func(deviceName string) string
	execute     func(ctx context.Context, client *mikrotik.Client) error
	success     func(deviceName string) string
}

func simpleCommands() []simpleCommand {
	return []simpleCommand{
		{
			name:        "status",
			description: "System resource status",
			fetch: func(ctx context.Context, c *mikrotik.Client, identity string) (string, error) {
				r, err := c.SystemResource(ctx)
				if err != nil {
					return "", err
				}
				return formatStatus(identity, r), nil
			},
		},
		{
			name:        "interfaces",
			description: "Network interfaces",
			fetch: func(ctx context.Context, c *mikrotik.Client, identity string) (string, error) {
				ifaces, err := c.Interfaces(ctx)
				if err != nil {
					return "", err
				}
				return formatInterfaces(identity, ifaces), nil
			},
		},
		{
			name:        "leases",
			description: "DHCP leases",
			fetch: func(ctx context.Context, c *mikrotik.Client, identity string) (string, error) {
				leases, err := c.DHCPLeases(ctx)
				if err != nil {
					return "", err
				}
				return formatLeases(identity, leases), nil
			},
		},
		{
			name:        "logs",
			description: "Recent log entries",
			fetch: func(ctx context.Context, c *mikrotik.Client, identity string) (string, error) {
				entries, err := c.Logs(ctx, 0)
				if err != nil {
					return "", err
				}
				return formatLogs(identity, entries), nil
			},
		},
		{
			name:        "services_enabled",
			description: "Enabled IP services",
			fetch: func(ctx context.Context, c *mikrotik.Client, identity string) (string, error) {
				services, err := c.ServicesEnabled(ctx)
				if err != nil {
					return "", err
				}
				return formatServices(identity, services), nil
			},
		},
		{
			name:        "updates",
			description: "Check for RouterOS updates",
			fetch: func(ctx context.Context, c *mikrotik.Client, identity string) (string, error) {
				info, err := c.CheckForUpdates(ctx)
				if err != nil {
					return "", err
				}
				return formatUpdates(identity, info), nil
			},
		},
	}
}

func sensitiveCommands() []sensitiveCommand {
	return []sensitiveCommand{
		{
			name:        "reboot",
			description: "Reboot the router",
			confirm:     formatRebootConfirmation,
			execute: func(ctx context.Context, c *mikrotik.Client) error {
				return c.Reboot(ctx)
			},
			success: func(deviceName string) string {
				return fmt.Sprintf("✅ Reboot command sent to *%s*", deviceName)
			},
		},
		{
			name:        "upgrade",
			description: "Install RouterOS updates",
			confirm:     formatUpgradeConfirmation,
			execute: func(ctx context.Context, c *mikrotik.Client) error {
				return c.InstallUpdates(ctx)
			},
			success: func(deviceName string) string {
				return fmt.Sprintf("✅ Upgrade started on *%s*. Router will reboot.", deviceName)
			},
		},
	}
}

// helpText renders the command list for /start and /help.
func helpText(simple []simpleCommand, sensitive []sensitiveCommand) string {
	var b strings.Builder
	b.WriteString("*MikroTik Management Bot*\n\n")

	b.WriteString("*System Commands:*\n")
	for _, cmd := range simple {
		fmt.Fprintf(&b, "/%s - %s\n", strings.ReplaceAll(cmd.name, "_", "\\_"), cmd.description)
	}

	b.WriteString("\n*Maintenance:*\n")
	for _, cmd := range sensitive {
		fmt.Fprintf(&b, "/%s - %s 🔐\n", cmd.name, cmd.description)
	}

	b.WriteString("\n*Security:*\n")
	b.WriteString("/mfa\\_status - Check MFA enrollment status\n")
	b.WriteString("\n/help - Show this message\n")
	b.WriteString("\n_🔐 Requires MFA authentication_")
	return b.String()
}
