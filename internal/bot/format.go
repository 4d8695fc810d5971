package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/infraops/infrabot/internal/mikrotik"
)

// maxMessageLength is Telegram's hard limit for a single message.
const maxMessageLength = 4096

// formatBytes renders a byte count as a human-readable size.
func formatBytes(v uint64) string {
	if v < 1024 {
		return fmt.Sprintf("%d B", v)
	}
	f := float64(v)
	for _, unit := range []string{"KB", "MB", "GB", "TB"} {
		f /= 1024
		if f < 1024 {
			return fmt.Sprintf("%.1f %s", f, unit)
		}
	}
	return fmt.Sprintf("%.1f PB", f/1024)
}

// formatUptime renders an uptime value. RouterOS usually reports a composite
// like "1w2d3h4m5s" which is passed through; plain second counts are expanded.
func formatUptime(v string) string {
	if strings.ContainsFunc(v, func(r rune) bool {
		return r >= 'a' && r <= 'z'
	}) {
		return v
	}

	seconds, err := strconv.ParseInt(strings.TrimSuffix(v, "s"), 10, 64)
	if err != nil {
		return v
	}

	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60
	secs := seconds % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}

// truncate caps a message at Telegram's length limit, backing the cut off to
// a rune boundary so a multi-byte character is never split. Telegram rejects
// messages containing invalid UTF-8.
func truncate(s string) string {
	if len(s) <= maxMessageLength {
		return s
	}
	cut := maxMessageLength - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func usedPercent(free, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return (1 - float64(free)/float64(total)) * 100
}

func formatStatus(identity string, r mikrotik.Resource) string {
	return fmt.Sprintf(`*%s* - System Status

*CPU:* %s%%
*Memory:* %.1f%% used (%s free)
*Disk:* %.1f%% used (%s free)
*Uptime:* %s

*Board:* %s
*RouterOS:* %s
*Architecture:* %s`,
		identity,
		r.CPULoad,
		usedPercent(r.FreeMemory, r.TotalMemory), formatBytes(r.FreeMemory),
		usedPercent(r.FreeHDDSpace, r.TotalHDDSpace), formatBytes(r.FreeHDDSpace),
		formatUptime(r.Uptime),
		r.BoardName, r.Version, r.ArchitectureName)
}

func formatInterfaces(identity string, ifaces []mikrotik.Interface) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* - Network Interfaces\n", identity)

	for _, iface := range ifaces {
		icon := "❌"
		if iface.Running {
			icon = "✅"
		}
		suffix := ""
		if iface.Disabled {
			suffix = " (disabled)"
		}
		fmt.Fprintf(&b, "\n%s *%s*%s\n", icon, iface.Name, suffix)
		fmt.Fprintf(&b, "    %s | TX: %s | RX: %s",
			iface.Type, formatBytes(iface.TxBytes), formatBytes(iface.RxBytes))
	}
	return b.String()
}

func formatLeases(identity string, leases []mikrotik.Lease) string {
	if len(leases) == 0 {
		return fmt.Sprintf("*%s*\n\nNo DHCP leases found.", identity)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* - DHCP Leases\n", identity)

	for _, lease := range leases {
		hostname := lease.Hostname
		if hostname == "" {
			hostname = lease.MACAddress
		}
		icon := "⏳"
		if lease.Status == "bound" {
			icon = "✅"
		}
		fmt.Fprintf(&b, "\n%s *%s*: `%s`", icon, hostname, lease.Address)
	}
	return b.String()
}

func formatLogs(identity string, entries []mikrotik.LogEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("*%s*\n\nNo log entries found.", identity)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* - Recent Logs\n```\n", identity)
	for _, e := range entries {
		fmt.Fprintf(&b, "%s [%s] %s\n", e.Time, e.Topics, e.Message)
	}
	b.WriteString("```")
	return b.String()
}

func formatServices(identity string, services []mikrotik.Service) string {
	if len(services) == 0 {
		return fmt.Sprintf("*%s*\n\nNo enabled IP services found.", identity)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* - Enabled IP Services\n", identity)

	for _, svc := range services {
		cert := svc.Certificate
		if cert == "" {
			cert = "None"
		}
		fmt.Fprintf(&b, "\n✅ *%s*: Port *%s*, Proto *%s*, Address *%s*, Cert: *%s*",
			svc.Name, svc.Port, svc.Proto, svc.Address, cert)
	}
	return b.String()
}

func formatUpdates(identity string, info mikrotik.UpdateInfo) string {
	if info.Available() {
		return fmt.Sprintf(`*%s* - Update Check

🆕 *Update Available!*

*Installed:* %s
*Available:* %s
*Channel:* %s

To install the update, use /upgrade command.`,
			identity, info.InstalledVersion, info.LatestVersion, info.Channel)
	}

	return fmt.Sprintf(`*%s* - Update Check

✅ *Running the latest version*

*Installed:* %s
*Channel:* %s`,
		identity, info.InstalledVersion, info.Channel)
}

func formatRebootConfirmation(deviceName string) string {
	return fmt.Sprintf("⚠️ *Reboot %s?*\n\n"+
		"This will immediately reboot the router. "+
		"All active connections will be dropped.\n\n"+
		"Are you sure?", deviceName)
}

func formatUpgradeConfirmation(deviceName string) string {
	return fmt.Sprintf("⚠️ *Upgrade %s?*\n\n"+
		"This will download and install the latest update. "+
		"The router will reboot automatically.\n\n"+
		"Are you sure?", deviceName)
}
