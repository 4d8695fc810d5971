package mikrotik

import "strconv"

// Resource is a /system/resource snapshot.
type Resource struct {
	Uptime           string
	Version          string
	CPULoad          string
	FreeMemory       uint64
	TotalMemory      uint64
	FreeHDDSpace     uint64
	TotalHDDSpace    uint64
	BoardName        string
	ArchitectureName string
}

// Interface is one row of /interface.
type Interface struct {
	Name     string
	Type     string
	Running  bool
	Disabled bool
	TxBytes  uint64
	RxBytes  uint64
}

// Lease is one row of /ip/dhcp-server/lease.
type Lease struct {
	Hostname   string
	MACAddress string
	Address    string
	Status     string
}

// LogEntry is one row of /log.
type LogEntry struct {
	Time    string
	Topics  string
	Message string
}

// Service is one row of /ip/service.
type Service struct {
	Name        string
	Port        string
	Proto       string
	Address     string
	Certificate string
}

// UpdateInfo is the /system/package/update state after check-for-updates.
type UpdateInfo struct {
	InstalledVersion string
	LatestVersion    string
	Channel          string
	Status           string
}

// Available reports whether a newer version was found.
func (u UpdateInfo) Available() bool {
	return u.LatestVersion != "" && u.LatestVersion != u.InstalledVersion
}

func parseResource(m map[string]string) Resource {
	return Resource{
		Uptime:           m["uptime"],
		Version:          m["version"],
		CPULoad:          m["cpu-load"],
		FreeMemory:       parseUint(m["free-memory"]),
		TotalMemory:      parseUint(m["total-memory"]),
		FreeHDDSpace:     parseUint(m["free-hdd-space"]),
		TotalHDDSpace:    parseUint(m["total-hdd-space"]),
		BoardName:        m["board-name"],
		ArchitectureName: m["architecture-name"],
	}
}

func parseInterface(m map[string]string) Interface {
	return Interface{
		Name:     m["name"],
		Type:     m["type"],
		Running:  m["running"] == "true",
		Disabled: m["disabled"] == "true",
		TxBytes:  parseUint(m["tx-byte"]),
		RxBytes:  parseUint(m["rx-byte"]),
	}
}

func parseLease(m map[string]string) Lease {
	return Lease{
		Hostname:   m["host-name"],
		MACAddress: m["mac-address"],
		Address:    m["address"],
		Status:     m["status"],
	}
}

func parseLogEntry(m map[string]string) LogEntry {
	return LogEntry{
		Time:    m["time"],
		Topics:  m["topics"],
		Message: m["message"],
	}
}

func parseService(m map[string]string) Service {
	return Service{
		Name:        m["name"],
		Port:        m["port"],
		Proto:       m["proto"],
		Address:     m["address"],
		Certificate: m["certificate"],
	}
}

func parseUpdateInfo(m map[string]string) UpdateInfo {
	return UpdateInfo{
		InstalledVersion: m["installed-version"],
		LatestVersion:    m["latest-version"],
		Channel:          m["channel"],
		Status:           m["status"],
	}
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
