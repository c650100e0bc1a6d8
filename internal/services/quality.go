package services

import (
	"sort"
	"strings"

	"github.com/shpitdev/cable-intel/internal/ingestion"
	"github.com/shpitdev/cable-intel/internal/normalization"
	"github.com/shpitdev/cable-intel/internal/types"
)

// placeholderValues are treated as absent identity fields.
var placeholderValues = map[string]bool{
	"unknown": true,
	"n/a":     true,
	"none":    true,
	"null":    true,
}

func isPlaceholder(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "" || placeholderValues[s]
}

// QualityAssessment is the outcome of the completeness gate for one variant.
type QualityAssessment struct {
	State  string
	Issues []string
}

// AssessQuality computes the variant quality state from the merged variant
// identity and the parsed capability payload. Pure; no storage access.
func AssessQuality(variant *types.CableVariant, cable *ingestion.ParsedCable) QualityAssessment {
	var issues []string

	if isPlaceholder(variant.Brand) {
		issues = append(issues, "missing_brand")
	}
	if isPlaceholder(variant.Model) {
		issues = append(issues, "missing_model")
	}
	if isPlaceholder(variant.ConnectorFrom) {
		issues = append(issues, "missing_connector_from")
	}
	if isPlaceholder(variant.ConnectorTo) {
		issues = append(issues, "missing_connector_to")
	}
	if strings.TrimSpace(variant.ProductURL) == "" {
		issues = append(issues, "missing_product_url")
	}
	if len(variant.ImageURLList()) == 0 {
		issues = append(issues, "missing_images")
	}

	if cable != nil {
		if len(cable.Evidence) == 0 {
			issues = append(issues, "missing_evidence")
		} else if missing := missingCriticalPaths(cable); len(missing) > 0 {
			issues = append(issues, "missing_critical_evidence:"+strings.Join(missing, ","))
		}
		// A USB-C pair without a positive wattage is unusable for the
		// primary charging-cable query.
		usbcPair := variant.ConnectorFrom == normalization.ConnectorUSBC &&
			variant.ConnectorTo == normalization.ConnectorUSBC
		if usbcPair && (cable.Power.MaxWatts == nil || *cable.Power.MaxWatts <= 0) {
			issues = append(issues, "missing_usb_c_power")
		}
	}

	state := types.QualityStateReady
	if len(issues) > 0 {
		state = types.QualityStateNeedsEnrichment
	}
	return QualityAssessment{State: state, Issues: issues}
}

func missingCriticalPaths(cable *ingestion.ParsedCable) []string {
	have := map[string]bool{}
	for _, ev := range cable.Evidence {
		have[ev.FieldPath] = true
	}
	var missing []string
	for _, path := range []string{
		types.FieldPathBrand,
		types.FieldPathModel,
		types.FieldPathConnectorFrom,
		types.FieldPathConnectorTo,
	} {
		if !have[path] {
			missing = append(missing, path)
		}
	}
	sort.Strings(missing)
	return missing
}
