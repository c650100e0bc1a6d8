package normalization

import (
	"regexp"
	"strconv"
	"strings"
)

// Connector is the enumerated end of a cable.
const (
	ConnectorUSBC      = "USB-C"
	ConnectorUSBA      = "USB-A"
	ConnectorLightning = "Lightning"
	ConnectorMicroUSB  = "Micro-USB"
	ConnectorUnknown   = "Unknown"
)

// LightningMaxGbps is the physical ceiling of the Lightning connector.
const LightningMaxGbps = 0.48

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePositiveNumber returns the maximum non-negative numeric token in s,
// or nil when none is present.
func ParsePositiveNumber(s string) *float64 {
	matches := numberPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil
	}
	best := -1.0
	found := false
	for _, m := range matches {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil || v < 0 {
			continue
		}
		if !found || v > best {
			best = v
			found = true
		}
	}
	if !found {
		return nil
	}
	return &best
}

var connectorAliases = map[string]string{
	"usb-c":       ConnectorUSBC,
	"usb c":       ConnectorUSBC,
	"usbc":        ConnectorUSBC,
	"type-c":      ConnectorUSBC,
	"type c":      ConnectorUSBC,
	"usb type-c":  ConnectorUSBC,
	"usb type c":  ConnectorUSBC,
	"thunderbolt": ConnectorUSBC,
	"usb-a":       ConnectorUSBA,
	"usb a":       ConnectorUSBA,
	"usba":        ConnectorUSBA,
	"type-a":      ConnectorUSBA,
	"type a":      ConnectorUSBA,
	"usb type-a":  ConnectorUSBA,
	"usb type a":  ConnectorUSBA,
	"lightning":   ConnectorLightning,
	"lightening":  ConnectorLightning,
	"micro-usb":   ConnectorMicroUSB,
	"micro usb":   ConnectorMicroUSB,
	"microusb":    ConnectorMicroUSB,
	"micro-b":     ConnectorMicroUSB,
	"micro b":     ConnectorMicroUSB,
}

// NormalizeConnector maps a free-form connector mention to the enumerated
// set; unrecognized values collapse to Unknown.
func NormalizeConnector(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.Join(strings.Fields(key), " ")
	if v, ok := connectorAliases[key]; ok {
		return v
	}
	return ConnectorUnknown
}

// generationHints maps generation token patterns to implied Gbps. Scanned in
// order; the maximum matching value wins.
var generationHints = []struct {
	pattern *regexp.Regexp
	gbps    float64
}{
	{regexp.MustCompile(`(?i)usb\s*4\s*(v2|version\s*2|2\.0)`), 80},
	{regexp.MustCompile(`(?i)thunderbolt\s*5|tb\s*5`), 80},
	{regexp.MustCompile(`(?i)usb\s*4`), 40},
	{regexp.MustCompile(`(?i)thunderbolt\s*4|tb\s*4`), 40},
	{regexp.MustCompile(`(?i)thunderbolt\s*3|tb\s*3`), 40},
	{regexp.MustCompile(`(?i)3\.2\s*gen\s*2\s*[x×]\s*2`), 20},
	{regexp.MustCompile(`(?i)gen\s*2\s*[x×]\s*2`), 20},
	{regexp.MustCompile(`(?i)3\.2\s*gen\s*2`), 10},
	{regexp.MustCompile(`(?i)3\.1\s*gen\s*2`), 10},
	{regexp.MustCompile(`(?i)usb\s*3\.0`), 5},
	{regexp.MustCompile(`(?i)3\.1\s*gen\s*1`), 5},
	{regexp.MustCompile(`(?i)3\.2\s*gen\s*1`), 5},
	{regexp.MustCompile(`(?i)usb\s*3(?:[^.\d]|$)`), 5},
	{regexp.MustCompile(`(?i)usb\s*2\.0|usb\s*2(?:[^.\d]|$)`), 0.48},
}

var explicitGbpsPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*gbps`)

// InferMaxGbpsFromGeneration resolves throughput from a marketing string in
// two passes: generation hints first, then explicit "NN Gbps" tokens. When
// both are present the maximum wins.
func InferMaxGbpsFromGeneration(s string) *float64 {
	var inferred *float64
	for _, hint := range generationHints {
		if hint.pattern.MatchString(s) {
			if inferred == nil || hint.gbps > *inferred {
				g := hint.gbps
				inferred = &g
			}
		}
	}
	var explicit *float64
	for _, m := range explicitGbpsPattern.FindAllStringSubmatch(s, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if explicit == nil || v > *explicit {
			val := v
			explicit = &val
		}
	}
	if explicit != nil {
		if inferred != nil && *inferred > *explicit {
			return inferred
		}
		return explicit
	}
	return inferred
}

var resolutionRanks = []struct {
	pattern *regexp.Regexp
	rank    int
}{
	{regexp.MustCompile(`(?i)8k`), 6},
	{regexp.MustCompile(`(?i)5k`), 5},
	{regexp.MustCompile(`(?i)4k|2160p|uhd`), 4},
	{regexp.MustCompile(`(?i)1440p|2k|qhd`), 3},
	{regexp.MustCompile(`(?i)1080p|fhd|full\s*hd`), 2},
	{regexp.MustCompile(`(?i)720p`), 1},
}

var genericResolutionPattern = regexp.MustCompile(`(?i)(\d{3,4})p`)

// ResolutionRank orders display resolutions 1 (720p) .. 6 (8K); unknown
// strings rank 0. Bare "<number>p" tokens are bucketed by line count.
func ResolutionRank(s string) int {
	for _, r := range resolutionRanks {
		if r.pattern.MatchString(s) {
			return r.rank
		}
	}
	if m := genericResolutionPattern.FindStringSubmatch(s); m != nil {
		lines, err := strconv.Atoi(m[1])
		if err == nil {
			switch {
			case lines >= 4320:
				return 6
			case lines >= 2880:
				return 5
			case lines >= 2160:
				return 4
			case lines >= 1440:
				return 3
			case lines >= 1080:
				return 2
			case lines >= 720:
				return 1
			}
		}
	}
	return 0
}

// ClampDataCapabilityByConnector enforces the Lightning ceiling on a data
// capability: 0.48 Gbps, and the generation string must mention USB 2.0.
// Returns the (possibly rewritten) generation and gbps values.
func ClampDataCapabilityByConnector(connectorFrom, connectorTo string, usbGeneration *string, maxGbps *float64) (*string, *float64) {
	if connectorFrom != ConnectorLightning && connectorTo != ConnectorLightning {
		return usbGeneration, maxGbps
	}
	if maxGbps != nil && *maxGbps > LightningMaxGbps {
		clamped := LightningMaxGbps
		maxGbps = &clamped
	}
	if usbGeneration != nil && !strings.Contains(strings.ToLower(*usbGeneration), "usb 2") {
		rewritten := "USB 2.0 (Lightning ceiling)"
		usbGeneration = &rewritten
	}
	if usbGeneration == nil && maxGbps != nil {
		gen := "USB 2.0 (Lightning ceiling)"
		usbGeneration = &gen
	}
	return usbGeneration, maxGbps
}
