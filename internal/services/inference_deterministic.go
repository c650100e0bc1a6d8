package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shpitdev/cable-intel/internal/normalization"
	"github.com/shpitdev/cable-intel/internal/types"
)

// DeterministicResult is the outcome of the rule-based pass over a free-text
// cable description.
type DeterministicResult struct {
	Draft         types.InferenceDraft
	Notes         []string
	Uncertainties []string
	Confidence    float64
	// Decided flags which categories the rules settled directly from prompt
	// tokens; derived values (the Lightning ceiling) do not count.
	Decided map[string]bool
	// DataOnlyDecided records whether the charging-vs-data-only question was
	// answered by an explicit token.
	DataOnlyDecided bool
}

var (
	inferConnectorPattern = regexp.MustCompile(`usb[\s-]?c|type[\s-]?c|usb[\s-]?a|type[\s-]?a|lightn?ing|lightening|micro[\s-]?usb|thunderbolt`)
	inferWattPattern      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*w(?:atts?)?\b`)
	inferGbpsPattern      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*gbps`)
	inferRefreshPattern   = regexp.MustCompile(`(\d+)\s*hz`)
	inferGenPattern       = regexp.MustCompile(`usb4(?:\s*v2)?|thunderbolt\s*\d|tb\s*\d|usb\s*3\.\d(?:\s*gen\s*\d(?:\s*[x×]\s*2)?)?|usb\s*2\.0|gen\s*\d(?:\s*[x×]\s*2)?`)
	inferResPattern       = regexp.MustCompile(`8k|5k|4k|2160p|1440p|1080p|720p`)

	arrowSeparators = []string{"->", "=>", "→", "⇒"}

	dataOnlyTokens = []string{"data only", "data-only", "sync only", "no charging"}
	chargingTokens = []string{"charge", "charging", "power delivery", "fast charge"}
	pdTokenRegex   = regexp.MustCompile(`\bpd\b|\bepr\b`)

	negativeVideoTokens = []string{"no video", "not support video", "does not support video", "charge only", "charging only", "no screen mirroring"}
	positiveVideoTokens = []string{"video", "monitor", "display", "screen mirroring", "displayport", "alt mode"}
)

// RunDeterministicInference applies the rule pipeline to a prompt. Pure.
func RunDeterministicInference(prompt string) DeterministicResult {
	text := strings.ToLower(strings.TrimSpace(prompt))
	text = strings.Join(strings.Fields(text), " ")
	for _, sep := range arrowSeparators {
		text = strings.ReplaceAll(text, sep, " to ")
	}

	res := DeterministicResult{Decided: map[string]bool{}}
	d := &res.Draft

	// Connector pair: ordered mentions. One mention fills only the from end.
	mentions := inferConnectorPattern.FindAllString(text, -1)
	switch {
	case len(mentions) >= 2:
		d.ConnectorFrom = normalization.NormalizeConnector(connectorLexeme(mentions[0]))
		d.ConnectorTo = normalization.NormalizeConnector(connectorLexeme(mentions[1]))
		res.Decided[types.UncertaintyConnector] = true
		res.Notes = append(res.Notes, fmt.Sprintf("Detected connector pair %s to %s.", d.ConnectorFrom, d.ConnectorTo))
	case len(mentions) == 1:
		d.ConnectorFrom = normalization.NormalizeConnector(connectorLexeme(mentions[0]))
		res.Notes = append(res.Notes, fmt.Sprintf("Only one connector mentioned (%s); the other end is unknown.", d.ConnectorFrom))
	}

	// Power: max watt token wins; any wattage implies a charging cable.
	if watts := maxWattToken(text); watts != nil {
		d.Watts = trimFloat(*watts)
		d.DataOnly = false
		res.DataOnlyDecided = true
		res.Decided[types.UncertaintyPower] = true
		res.Notes = append(res.Notes, fmt.Sprintf("Wattage %sW taken from the prompt.", d.Watts))
	}

	if containsAny(text, dataOnlyTokens) {
		d.DataOnly = true
		res.DataOnlyDecided = true
		res.Notes = append(res.Notes, "Prompt marks the cable as data-only.")
	} else if containsAny(text, chargingTokens) || pdTokenRegex.MatchString(text) {
		d.DataOnly = false
		res.DataOnlyDecided = true
		if !res.Decided[types.UncertaintyPower] {
			res.Notes = append(res.Notes, "Charging capability mentioned without a wattage.")
		}
		res.Decided[types.UncertaintyPower] = true
	}

	// Data: explicit Gbps beats generation inference.
	if m := inferGbpsPattern.FindStringSubmatch(text); m != nil {
		d.Gbps = m[1]
		res.Decided[types.UncertaintyData] = true
	}
	if gen := inferGenPattern.FindString(text); gen != "" {
		d.USBGeneration = canonicalGenerationLabel(gen)
		res.Decided[types.UncertaintyData] = true
		if d.Gbps == "" {
			if inferred := normalization.InferMaxGbpsFromGeneration(text); inferred != nil {
				d.Gbps = trimFloat(*inferred)
				res.Notes = append(res.Notes, fmt.Sprintf("Throughput %s Gbps inferred from %q.", d.Gbps, gen))
			}
		}
	}

	// Video: negative wins over positive.
	if containsAny(text, negativeVideoTokens) {
		d.VideoSupport = "no"
		res.Decided[types.UncertaintyVideo] = true
	} else if containsAny(text, positiveVideoTokens) {
		d.VideoSupport = "yes"
		res.Decided[types.UncertaintyVideo] = true
	}
	if m := inferResPattern.FindString(text); m != "" {
		d.MaxResolution = strings.ToUpper(m)
		if d.VideoSupport == "" {
			d.VideoSupport = "yes"
			res.Decided[types.UncertaintyVideo] = true
		}
	}
	if m := inferRefreshPattern.FindStringSubmatch(text); m != nil {
		d.MaxRefreshHz = m[1]
		if d.VideoSupport == "" {
			d.VideoSupport = "yes"
			res.Decided[types.UncertaintyVideo] = true
		}
	}

	// Lightning ceiling: derived, so it does not mark data/video as decided.
	if d.ConnectorFrom == normalization.ConnectorLightning || d.ConnectorTo == normalization.ConnectorLightning {
		d.USBGeneration = "USB 2.0"
		d.Gbps = trimFloat(normalization.LightningMaxGbps)
		d.VideoSupport = "no"
		res.Notes = append(res.Notes, "Lightning ceiling applied: USB 2.0, 0.48 Gbps, no video output.")
	}

	res.Uncertainties = undecidedCategories(res.Decided)

	categories := len(res.Decided)
	confidence := 0.23 + 0.17*float64(categories)
	if len(mentions) == 1 {
		confidence -= 0.06
	}
	if len(res.Notes) > 0 {
		confidence += 0.06
	}
	res.Confidence = types.ClampConfidence(confidence)
	return res
}

// canonicalGenerationLabel restores vendor casing on a generation token
// matched against the lowercased prompt ("usb4" becomes "USB4").
func canonicalGenerationLabel(gen string) string {
	gen = strings.TrimSpace(gen)
	gen = strings.ReplaceAll(gen, "thunderbolt", "Thunderbolt")
	gen = strings.ReplaceAll(gen, "usb", "USB")
	gen = strings.ReplaceAll(gen, "tb", "TB")
	gen = strings.ReplaceAll(gen, "gen", "Gen")
	return gen
}

// connectorLexeme widens bare fragments so the shared normalizer accepts
// them ("thunderbolt" already maps to USB-C there).
func connectorLexeme(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "lightening":
		return "lightning"
	}
	return s
}

func maxWattToken(text string) *float64 {
	var best *float64
	for _, m := range inferWattPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v <= 0 || v > 500 {
			continue
		}
		if best == nil || v > *best {
			val := v
			best = &val
		}
	}
	return best
}

func containsAny(text string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// undecidedCategories lists missing categories in follow-up priority order.
func undecidedCategories(decided map[string]bool) []string {
	var out []string
	for _, cat := range []string{
		types.UncertaintyPower,
		types.UncertaintyData,
		types.UncertaintyVideo,
		types.UncertaintyConnector,
	} {
		if !decided[cat] {
			out = append(out, cat)
		}
	}
	return out
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
