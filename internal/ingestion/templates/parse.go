package templates

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shpitdev/cable-intel/internal/ingestion"
	"github.com/shpitdev/cable-intel/internal/normalization"
	"github.com/shpitdev/cable-intel/internal/types"
)

// MaxPlausibleWatts caps wattage extraction; marketing copy above this is
// noise (model numbers, mAh figures misread, etc).
const MaxPlausibleWatts = 500.0

var (
	connectorToken = `(?:usb[\s-]?c|type[\s-]?c|usb[\s-]?a|type[\s-]?a|lightn?ing|lightening|micro[\s-]?usb)`

	connectorPairPattern = regexp.MustCompile(`(?i)(` + connectorToken + `)\s+to\s+(` + connectorToken + `)`)
	connectorAnyPattern  = regexp.MustCompile(`(?i)` + connectorToken)

	wattPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:w\b|watts?\b)`)
	gbpsPattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*gbps`)
	refreshPattern = regexp.MustCompile(`(?i)(\d+)\s*hz`)

	generationTokenPattern = regexp.MustCompile(`(?i)usb4(?:\s*v2)?|thunderbolt\s*\d|tb\s*\d|usb\s*3\.\d(?:\s*gen\s*\d(?:\s*[x×]\s*2)?)?|usb\s*2\.0`)

	resolutionTokenPattern = regexp.MustCompile(`(?i)8k|5k|4k|2160p|1440p|2k|1080p|720p|fhd|qhd|uhd`)

	lengthTokenPattern    = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:ft|m|cm|in)\b`)
	parentheticalPattern  = regexp.MustCompile(`\(([^)]+)\)`)
	negativeVideoPatterns = []string{"not support screen mirroring", "does not support screen mirroring", "no video", "charge only", "charging only"}
	positiveVideoPatterns = []string{"screen mirroring", "video output", "displayport", "display port", "alt mode", "8k", "5k", "4k", "monitor"}
	pdTokenPattern        = regexp.MustCompile(`(?i)\bpd\b|power\s+delivery`)
	eprTokenPattern       = regexp.MustCompile(`(?i)\bepr\b|extended\s+power\s+range`)
	thunderboltTitleHint  = regexp.MustCompile(`(?i)thunderbolt`)
)

// parseProduct maps a canonical product record into one parsed cable per
// variant, applying the capability extraction rules.
func parseProduct(tpl *Template, p *shopifyProduct, productURL string) []ingestion.ParsedCable {
	brand, brandSnippet := resolveBrand(tpl, p.Vendor)
	model := ensureBrandPrefix(brand, strings.TrimSpace(p.Title))
	description := stripHTML(p.Description)
	fullText := p.Title + "\n" + description

	from, to, pairSnippet := resolveConnectorPair(p.Title, description)

	productWatts, productWattSnippet := maxWatts(append([]string{p.Title, description}, p.KeyFeatures...)...)
	gen, gbps, dataSnippet := resolveData(fullText)
	video, resolution, refresh, videoSnippet := resolveVideo(p.Title, description)

	productImages := normalizeImageURLs(append([]string{p.FeaturedImage}, p.Images...))

	var out []ingestion.ParsedCable
	for i := range p.Variants {
		v := &p.Variants[i]
		cable := ingestion.ParsedCable{
			Brand:         brand,
			Model:         model,
			SKU:           strings.TrimSpace(v.SKU),
			ConnectorFrom: from,
			ConnectorTo:   to,
			ProductURL:    productURL,
		}

		cable.Variant = variantLabel(v, model, len(p.Variants) == 1)

		imageAlt := ""
		if v.FeaturedImage != nil {
			imageAlt = v.FeaturedImage.Alt
		}

		// Per-variant wattage in the label or image alt overrides the
		// product default.
		watts := productWatts
		wattSnippet := productWattSnippet
		if vw, vs := maxWatts(v.Title, strPtr(v.PublicTitle), imageAlt); vw != nil {
			watts = vw
			wattSnippet = vs
		}
		if watts != nil && *watts > 0 && *watts <= MaxPlausibleWatts {
			cable.Power.MaxWatts = watts
		}
		if pdTokenPattern.MatchString(fullText) {
			t := true
			cable.Power.PDSupported = &t
		}
		if eprTokenPattern.MatchString(fullText) {
			t := true
			cable.Power.EPRSupported = &t
		}

		cable.Data.USBGeneration = gen
		cable.Data.MaxGbps = gbps
		cable.Data.USBGeneration, cable.Data.MaxGbps = normalization.ClampDataCapabilityByConnector(
			cable.ConnectorFrom, cable.ConnectorTo, cable.Data.USBGeneration, cable.Data.MaxGbps)

		cable.Video.ExplicitlySupported = video
		cable.Video.MaxResolution = resolution
		cable.Video.MaxRefreshHz = refresh

		var imgs []string
		if v.FeaturedImage != nil && v.FeaturedImage.Src != "" {
			imgs = append(imgs, v.FeaturedImage.Src)
		}
		cable.ImageURLs = normalizeImageURLs(append(imgs, productImages...))

		cable.AddEvidence(types.FieldPathBrand, brandSnippet)
		cable.AddEvidence(types.FieldPathModel, strings.TrimSpace(p.Title))
		cable.AddEvidence(types.FieldPathConnectorFrom, pairSnippet)
		cable.AddEvidence(types.FieldPathConnectorTo, pairSnippet)
		if cable.Power.MaxWatts != nil {
			cable.AddEvidence("power.maxWatts", wattSnippet)
		}
		if cable.Data.MaxGbps != nil {
			cable.AddEvidence("data.maxGbps", dataSnippet)
		}
		if cable.Video.ExplicitlySupported != nil {
			cable.AddEvidence("video.explicitlySupported", videoSnippet)
		}

		out = append(out, cable)
	}
	return out
}

// resolveBrand prefers the vendor string; unknown vendors fall back to the
// template name, and vendor slugs derived from the template name (e.g. a
// "beta-anker" storefront alias) normalize to the canonical brand.
func resolveBrand(tpl *Template, vendor string) (brand, snippet string) {
	vendor = strings.TrimSpace(vendor)
	low := strings.ToLower(vendor)
	if vendor == "" || low == "unknown" || low == "n/a" {
		return tpl.Name, tpl.Name
	}
	vendorSlug := slugify(vendor)
	nameSlug := slugify(tpl.Name)
	if vendorSlug == nameSlug ||
		strings.HasPrefix(vendorSlug, nameSlug+"-") ||
		strings.HasSuffix(vendorSlug, "-"+nameSlug) {
		return tpl.Name, vendor
	}
	return vendor, vendor
}

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnumPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func ensureBrandPrefix(brand, title string) string {
	if title == "" {
		return brand
	}
	if strings.HasPrefix(strings.ToLower(title), strings.ToLower(brand)) {
		return title
	}
	return brand + " " + title
}

// resolveConnectorPair applies the cascade: "X to Y" in the title, then the
// description, then the Thunderbolt-title default, then the first two
// distinct connector tokens anywhere in the text.
func resolveConnectorPair(title, description string) (from, to, snippet string) {
	if m := connectorPairPattern.FindStringSubmatch(title); m != nil {
		return normalization.NormalizeConnector(m[1]), normalization.NormalizeConnector(m[2]), m[0]
	}
	if m := connectorPairPattern.FindStringSubmatch(description); m != nil {
		return normalization.NormalizeConnector(m[1]), normalization.NormalizeConnector(m[2]), m[0]
	}
	if thunderboltTitleHint.MatchString(title) {
		return normalization.ConnectorUSBC, normalization.ConnectorUSBC, firstMatch(thunderboltTitleHint, title)
	}
	full := title + "\n" + description
	var tokens []string
	var snippets []string
	seen := map[string]bool{}
	for _, m := range connectorAnyPattern.FindAllString(full, -1) {
		norm := normalization.NormalizeConnector(m)
		if norm == normalization.ConnectorUnknown || seen[norm] {
			continue
		}
		seen[norm] = true
		tokens = append(tokens, norm)
		snippets = append(snippets, m)
		if len(tokens) == 2 {
			break
		}
	}
	switch len(tokens) {
	case 2:
		return tokens[0], tokens[1], snippets[0] + " / " + snippets[1]
	case 1:
		return tokens[0], tokens[0], snippets[0]
	default:
		return normalization.ConnectorUnknown, normalization.ConnectorUnknown, ""
	}
}

func firstMatch(re *regexp.Regexp, s string) string {
	return re.FindString(s)
}

// maxWatts scans all supplied text fragments for the maximum watt token.
func maxWatts(fragments ...string) (*float64, string) {
	var best *float64
	var snippet string
	for _, frag := range fragments {
		for _, m := range wattPattern.FindAllStringSubmatch(frag, -1) {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil || v <= 0 || v > MaxPlausibleWatts {
				continue
			}
			if best == nil || v > *best {
				val := v
				best = &val
				snippet = m[0]
			}
		}
	}
	return best, snippet
}

// resolveData finds explicit Gbps tokens first, then falls back to
// generation inference. The generation string itself is the first matching
// generation token in the text.
func resolveData(fullText string) (*string, *float64, string) {
	var gen *string
	genToken := generationTokenPattern.FindString(fullText)
	if genToken != "" {
		trimmed := strings.TrimSpace(genToken)
		gen = &trimmed
	}

	var gbps *float64
	snippet := ""
	for _, m := range gbpsPattern.FindAllStringSubmatch(fullText, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if gbps == nil || v > *gbps {
			val := v
			gbps = &val
			snippet = m[0]
		}
	}
	if gbps == nil && genToken != "" {
		if inferred := normalization.InferMaxGbpsFromGeneration(fullText); inferred != nil {
			gbps = inferred
			snippet = genToken
		}
	}
	return gen, gbps, snippet
}

// resolveVideo applies negative-wins precedence, then resolution/refresh
// parsing from the title and description.
func resolveVideo(title, description string) (*bool, *string, *float64, string) {
	full := strings.ToLower(title + "\n" + description)

	var supported *bool
	snippet := ""
	for _, neg := range negativeVideoPatterns {
		if strings.Contains(full, neg) {
			f := false
			supported = &f
			snippet = neg
			break
		}
	}
	if supported == nil {
		for _, pos := range positiveVideoPatterns {
			if strings.Contains(full, pos) {
				t := true
				supported = &t
				snippet = pos
				break
			}
		}
	}

	var resolution *string
	if m := resolutionTokenPattern.FindString(title + "\n" + description); m != "" {
		norm := strings.ToUpper(m)
		resolution = &norm
	}
	var refresh *float64
	for _, m := range refreshPattern.FindAllStringSubmatch(title+"\n"+description, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if refresh == nil || v > *refresh {
			val := v
			refresh = &val
		}
	}
	// Video explicitly off means resolution/refresh tokens referred to
	// something else (e.g. the charger).
	if supported != nil && !*supported {
		resolution = nil
		refresh = nil
	}
	return supported, resolution, refresh, snippet
}

// variantLabel picks the human label for a variant: public title, joined
// option values, then (single-variant products only) a parenthesized hint in
// the model, a length token, and finally the SKU.
func variantLabel(v *shopifyVariant, model string, singleVariant bool) string {
	if v.PublicTitle != nil {
		pt := strings.TrimSpace(*v.PublicTitle)
		if pt != "" && pt != "Default Title" {
			return pt
		}
	}
	if t := strings.TrimSpace(v.Title); t != "" && t != "Default Title" {
		return t
	}
	if joined := strings.TrimSpace(strings.Join(v.Options, " / ")); joined != "" && joined != "Default Title" {
		return joined
	}
	if singleVariant {
		if m := parentheticalPattern.FindStringSubmatch(model); m != nil {
			return strings.TrimSpace(m[1])
		}
		if m := lengthTokenPattern.FindString(model); m != "" {
			return strings.TrimSpace(m)
		}
		return strings.TrimSpace(v.SKU)
	}
	return strings.TrimSpace(v.SKU)
}

// normalizeImageURLs dedupes while preserving order and upgrades
// protocol-relative URLs.
func normalizeImageURLs(urls []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if strings.HasPrefix(u, "//") {
			u = "https:" + u
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
