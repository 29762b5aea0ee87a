package media

import (
	"strings"
	"sync/atomic"
)

// Provider identifies a decoder implementation.
type Provider uint8

const (
	ProviderAuto     Provider = iota // Let library choose best available
	ProviderOpenH264                 // BSD H.264 decoder (native)
	ProviderLibvpx                   // BSD VP8/VP9 decoder (native)
	ProviderLibopus                  // BSD Opus decoder (native)
	ProviderGoAAC                    // Pure Go FAAD2 port
	ProviderG711                     // Pure Go G.711 tables
	ProviderGoVP8                    // Pure Go VP8 keyframe decoder
	ProviderGoMP3                    // Pure Go MPEG Layer III decoder
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseGPL License = iota // Copyleft - requires source disclosure
	LicenseBSD                // Permissive - no copyleft obligations
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

func (l License) String() string {
	switch l {
	case LicenseGPL:
		return "GPL"
	case LicenseBSD:
		return "BSD"
	default:
		return "unknown"
	}
}

// providerMeta contains static metadata about a provider.
type providerMeta struct {
	Name    string
	License License
	Native  bool // requires a shared library at runtime
	Rank    int  // higher wins when licenses tie
}

// Static metadata table - indexed by Provider, zero allocations.
var providerInfo = [providerCount]providerMeta{
	ProviderAuto:     {"auto", LicenseBSD, false, 0},
	ProviderOpenH264: {"openh264", LicenseBSD, true, 10},
	ProviderLibvpx:   {"libvpx", LicenseBSD, true, 10},
	ProviderLibopus:  {"libopus", LicenseBSD, true, 10},
	ProviderGoAAC:    {"go-aac", LicenseGPL, false, 5},
	ProviderG711:     {"g711", LicenseBSD, false, 5},
	ProviderGoVP8:    {"x-image-vp8", LicenseBSD, false, 1},
	ProviderGoMP3:    {"go-mp3", LicenseBSD, false, 5},
}

// Runtime availability - set by init() in provider implementations.
var providerAvailable [providerCount]atomic.Bool

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// License returns the provider's license type.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Native returns true if the provider loads a shared library.
func (p Provider) Native() bool {
	if p >= providerCount {
		return false
	}
	return providerInfo[p].Native
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

// preferredOver reports whether p should become the default instead of q.
func (p Provider) preferredOver(q Provider) bool {
	if p.License().Permissive() != q.License().Permissive() {
		return p.License().Permissive()
	}
	return providerInfo[p].Rank > providerInfo[q].Rank
}

// ParseProvider maps a provider name to a Provider. Unknown names map to ProviderAuto.
func ParseProvider(name string) Provider {
	for p := Provider(0); p < providerCount; p++ {
		if strings.EqualFold(providerInfo[p].Name, name) {
			return p
		}
	}
	return ProviderAuto
}

// setProviderAvailable marks a provider as available (called by implementations).
func setProviderAvailable(p Provider) {
	if p < providerCount {
		providerAvailable[p].Store(true)
	}
}
