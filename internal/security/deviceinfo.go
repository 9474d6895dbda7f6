package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
)

// DeviceInfoProvider abstracts the OS-level queries behind device
// fingerprinting so the comparison logic stays pure and unit-testable.
type DeviceInfoProvider interface {
	MachineID() (string, error)
	Hostname() (string, error)
	MACAddresses() ([]string, error)
	CPUInfo() (string, error)
	MemoryInfo() (string, error)
	OSRelease() (string, error)
	Platform() string
	Arch() string
}

// SystemInfoProvider implements DeviceInfoProvider with real OS queries.
type SystemInfoProvider struct{}

// NewSystemInfoProvider returns the production device info provider.
func NewSystemInfoProvider() *SystemInfoProvider {
	return &SystemInfoProvider{}
}

// Platform returns the OS name the binary runs on
func (p *SystemInfoProvider) Platform() string {
	return runtime.GOOS
}

// Arch returns the CPU architecture the binary runs on
func (p *SystemInfoProvider) Arch() string {
	return runtime.GOARCH
}

// MachineID returns the OS-assigned stable machine identifier (OS-specific)
func (p *SystemInfoProvider) MachineID() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return p.machineIDLinux()
	case "windows":
		return p.machineIDWindows()
	case "darwin":
		return p.machineIDDarwin()
	default:
		return "", fmt.Errorf("no machine id source for %s", runtime.GOOS)
	}
}

// machineIDLinux reads the systemd/dbus machine id
func (p *SystemInfoProvider) machineIDLinux() (string, error) {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		id := strings.TrimSpace(string(data))
		if id != "" {
			return normalizeID(id), nil
		}
	}
	return "", fmt.Errorf("machine id not readable")
}

// machineIDWindows derives a stable id from the machine GUID environment,
// falling back to the computer name plus processor identity.
func (p *SystemInfoProvider) machineIDWindows() (string, error) {
	if guid := os.Getenv("MachineGuid"); guid != "" {
		return normalizeID(guid), nil
	}
	name := os.Getenv("COMPUTERNAME")
	proc := os.Getenv("PROCESSOR_IDENTIFIER")
	if name == "" && proc == "" {
		return "", fmt.Errorf("no machine id source available")
	}
	return normalizeID(name + "|" + proc), nil
}

// machineIDDarwin derives a stable id from hostname plus hardware type.
// The IOPlatformUUID requires spawning ioreg, which the engine avoids; the
// hashed surrogate is stable across reboots for the same install.
func (p *SystemInfoProvider) machineIDDarwin() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	return normalizeID(fmt.Sprintf("%s|darwin|%s", hostname, runtime.GOARCH)), nil
}

// Hostname retrieves the normalized machine hostname
func (p *SystemInfoProvider) Hostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}
	return hostname, nil
}

// MACAddresses returns the MAC addresses of non-loopback interfaces,
// sorted so interface enumeration order does not affect the fingerprint.
func (p *SystemInfoProvider) MACAddresses() ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	var macs []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac == "" || mac == "00:00:00:00:00:00" {
			continue
		}
		macs = append(macs, strings.ToLower(mac))
	}

	if len(macs) == 0 {
		return nil, fmt.Errorf("no valid MAC address found")
	}

	sort.Strings(macs)
	return macs, nil
}

// CPUInfo retrieves a normalized CPU identity string (OS-specific)
func (p *SystemInfoProvider) CPUInfo() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if procID := os.Getenv("PROCESSOR_IDENTIFIER"); procID != "" {
			return normalizeID(procID), nil
		}
	case "linux":
		data, err := os.ReadFile("/proc/cpuinfo")
		if err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") {
					return normalizeID(line), nil
				}
			}
		}
	}
	// Fallback: architecture-level identity only
	return normalizeID(fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)), nil
}

// MemoryInfo returns a coarse memory size class string. Exact byte counts
// fluctuate with reserved memory, so only the bucket participates in the
// fingerprint.
func (p *SystemInfoProvider) MemoryInfo() (string, error) {
	if runtime.GOOS == "linux" {
		data, err := os.ReadFile("/proc/meminfo")
		if err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "MemTotal:") {
					fields := strings.Fields(line)
					if len(fields) >= 2 {
						return "memkb-bucket-" + bucketMemKB(fields[1]), nil
					}
				}
			}
		}
	}
	return "", fmt.Errorf("memory info unavailable")
}

// bucketMemKB rounds a kB figure down to the nearest power-of-two GiB class
func bucketMemKB(kb string) string {
	var n int64
	fmt.Sscanf(kb, "%d", &n)
	gib := n / (1024 * 1024)
	bucket := int64(1)
	for bucket*2 <= gib {
		bucket *= 2
	}
	return fmt.Sprintf("%dgib", bucket)
}

// OSRelease returns the OS release/version string
func (p *SystemInfoProvider) OSRelease() (string, error) {
	if runtime.GOOS == "linux" {
		data, err := os.ReadFile("/etc/os-release")
		if err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "PRETTY_NAME=") {
					return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), `"`), nil
				}
			}
		}
	}
	return "", fmt.Errorf("os release unavailable")
}

// normalizeID hashes a raw identity string so fingerprint fields have a
// uniform length and no raw hardware strings leak into logs or storage.
func normalizeID(raw string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(hash[:8])
}

// logProviderFallback logs a degraded field during fingerprint generation
func logProviderFallback(field string, err error) {
	slog.Debug("device info field unavailable, degrading",
		slog.String("field", field),
		slog.String("error", err.Error()),
	)
}
