package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// secondaryMatchThreshold is the minimum ratio of matching identity
// fields (over fields present on both sides) for two fingerprints of the
// same primary identity to be considered the same device. Hostnames and
// NIC sets drift after routine OS changes; demanding exact equality would
// lock out legitimate owners.
const secondaryMatchThreshold = 0.70

// Fingerprint is a composite identity for a device. MachineID, Platform
// and Arch are primary identifiers and must match exactly; the remaining
// fields are secondary and compared fuzzily.
type Fingerprint struct {
	MachineID    string    `json:"machine_id"`
	Platform     string    `json:"platform"`
	Arch         string    `json:"arch"`
	Hostname     string    `json:"hostname,omitempty"`
	MACAddresses []string  `json:"mac_addresses,omitempty"`
	CPUInfo      string    `json:"cpu_info,omitempty"`
	MemoryInfo   string    `json:"memory_info,omitempty"`
	OSRelease    string    `json:"os_release,omitempty"`
	Signature    string    `json:"device_signature"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// FingerprintEngine generates fresh device fingerprints from a
// DeviceInfoProvider. Comparison is a pure package-level function.
type FingerprintEngine struct {
	provider DeviceInfoProvider
	logger   *slog.Logger
}

// NewFingerprintEngine creates a fingerprint engine backed by the given provider
func NewFingerprintEngine(provider DeviceInfoProvider, logger *slog.Logger) *FingerprintEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &FingerprintEngine{
		provider: provider,
		logger:   logger.With(slog.String("component", "fingerprint_engine")),
	}
}

// Generate collects a fresh fingerprint. Missing secondary fields degrade
// to empty values rather than failing the whole generation; only a missing
// machine id makes Generate fall back to a hostname-derived surrogate.
func (e *FingerprintEngine) Generate() (*Fingerprint, error) {
	start := time.Now()

	fp := &Fingerprint{
		Platform:    e.provider.Platform(),
		Arch:        e.provider.Arch(),
		GeneratedAt: start,
	}

	machineID, err := e.provider.MachineID()
	if err != nil {
		hostname, herr := e.provider.Hostname()
		if herr != nil {
			return nil, fmt.Errorf("failed to derive machine identity: %w", err)
		}
		machineID = normalizeID("surrogate|" + hostname + "|" + fp.Platform + "|" + fp.Arch)
		e.logger.Warn("machine id unavailable, using hostname surrogate",
			slog.String("error", err.Error()),
		)
	}
	fp.MachineID = machineID

	if hostname, err := e.provider.Hostname(); err == nil {
		fp.Hostname = hostname
	} else {
		logProviderFallback("hostname", err)
	}
	if macs, err := e.provider.MACAddresses(); err == nil {
		fp.MACAddresses = macs
	} else {
		logProviderFallback("mac_addresses", err)
	}
	if cpu, err := e.provider.CPUInfo(); err == nil {
		fp.CPUInfo = cpu
	} else {
		logProviderFallback("cpu_info", err)
	}
	if mem, err := e.provider.MemoryInfo(); err == nil {
		fp.MemoryInfo = mem
	} else {
		logProviderFallback("memory_info", err)
	}
	if rel, err := e.provider.OSRelease(); err == nil {
		fp.OSRelease = rel
	} else {
		logProviderFallback("os_release", err)
	}

	fp.Signature = ComputeSignature(fp)

	e.logger.Debug("device fingerprint generated",
		slog.String("device_signature", fp.Signature),
		slog.String("platform", fp.Platform),
		slog.String("arch", fp.Arch),
		slog.Duration("generation_time", time.Since(start)),
	)

	return fp, nil
}

// ComputeSignature derives the composite device signature hash over all
// fingerprint fields in a fixed order, weighted toward the stable primary
// identifiers by placing them first and repeating them.
func ComputeSignature(fp *Fingerprint) string {
	factors := []string{
		fp.MachineID, fp.Platform, fp.Arch,
		fp.MachineID, // primary fields weighted double
		fp.Hostname,
		strings.Join(fp.MACAddresses, ","),
		fp.CPUInfo,
		fp.MemoryInfo,
		fp.OSRelease,
	}
	hash := sha256.Sum256([]byte(strings.Join(factors, "|")))
	return hex.EncodeToString(hash[:])
}

// Compare reports whether two fingerprints identify the same device.
// Primary identifiers must match exactly; any primary mismatch is final
// regardless of secondary agreement. Secondary identifiers are compared
// only where present on both sides, and the match ratio is computed over
// all identity fields shared by both fingerprints, so the primaries
// (having matched exactly) anchor the ratio: a single drifted secondary
// such as a renamed host never locks out the legitimate owner, while a
// majority of drifted secondaries still fails the threshold.
func Compare(a, b *Fingerprint) bool {
	if a == nil || b == nil {
		return false
	}
	if a.MachineID != b.MachineID || a.Platform != b.Platform || a.Arch != b.Arch {
		return false
	}

	// Primaries matched exactly above.
	matches, total := 3, 3

	if a.Hostname != "" && b.Hostname != "" {
		total++
		if a.Hostname == b.Hostname {
			matches++
		}
	}
	if len(a.MACAddresses) > 0 && len(b.MACAddresses) > 0 {
		total++
		if macsIntersect(a.MACAddresses, b.MACAddresses) {
			matches++
		}
	}
	if a.CPUInfo != "" && b.CPUInfo != "" {
		total++
		if a.CPUInfo == b.CPUInfo {
			matches++
		}
	}

	return float64(matches)/float64(total) >= secondaryMatchThreshold
}

// macsIntersect reports whether the two MAC address sets share any entry.
// NICs come and go (docking stations, VPN adapters); one surviving
// physical address is enough to corroborate the device.
func macsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, mac := range a {
		set[strings.ToLower(mac)] = struct{}{}
	}
	for _, mac := range b {
		if _, ok := set[strings.ToLower(mac)]; ok {
			return true
		}
	}
	return false
}

// Summary returns a display-safe view of the fingerprint for the UI:
// MAC addresses truncated, signature shortened.
func (fp *Fingerprint) Summary() map[string]string {
	summary := map[string]string{
		"platform": fp.Platform,
		"arch":     fp.Arch,
		"hostname": fp.Hostname,
	}
	if len(fp.MACAddresses) > 0 {
		summary["mac_address"] = TruncateMAC(fp.MACAddresses[0])
	}
	if len(fp.Signature) >= 12 {
		summary["device_signature"] = fp.Signature[:12]
	} else {
		summary["device_signature"] = fp.Signature
	}
	return summary
}

// TruncateMAC masks the host-specific half of a MAC address for display
func TruncateMAC(mac string) string {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return "**:**:**:**:**:**"
	}
	return fmt.Sprintf("%s:%s:%s:**:**:**", parts[0], parts[1], parts[2])
}
