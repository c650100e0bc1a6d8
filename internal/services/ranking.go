package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shpitdev/cable-intel/internal/clients/rediscache"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/normalization"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
)

// CableSummary is the query-facing cable shape: merged variant identity plus
// the best spec's capabilities and its completeness score.
type CableSummary struct {
	VariantID         uuid.UUID       `json:"variantId"`
	SpecID            uuid.UUID       `json:"specId"`
	WorkflowID        uuid.UUID       `json:"workflowId"`
	Brand             string          `json:"brand"`
	Model             string          `json:"model"`
	Variant           string          `json:"variant,omitempty"`
	SKU               string          `json:"sku,omitempty"`
	ConnectorFrom     string          `json:"connectorFrom"`
	ConnectorTo       string          `json:"connectorTo"`
	ProductURL        string          `json:"productUrl,omitempty"`
	ImageURLs         []string        `json:"imageUrls,omitempty"`
	QualityState      string          `json:"qualityState"`
	QualityIssues     []string        `json:"qualityIssues,omitempty"`
	Power             types.PowerSpec `json:"power"`
	Data              types.DataSpec  `json:"data"`
	Video             types.VideoSpec `json:"video"`
	CompletenessScore int             `json:"completenessScore"`
}

// RankingService answers the cable query surface: top-ranked ready cables
// and the needs-enrichment review list.
type RankingService interface {
	// TopCables returns cables ranked by completeness, best spec per variant,
	// one entry per (brand, sku). includeStates widens the default
	// ready-only quality filter; an optional free-text query re-ranks by
	// brand and connector-pair affinity.
	TopCables(ctx context.Context, limit int, searchQuery string, includeStates []string) ([]CableSummary, error)
	// ReviewCables lists needs_enrichment variants with their issues.
	ReviewCables(ctx context.Context, limit int) ([]CableSummary, error)
}

type rankingService struct {
	log          *logger.Logger
	specRepo     repos.NormalizedSpecRepo
	variantRepo  repos.CableVariantRepo
	evidenceRepo repos.EvidenceSourceRepo
	cache        rediscache.QueryCache
}

func NewRankingService(
	baseLog *logger.Logger,
	specRepo repos.NormalizedSpecRepo,
	variantRepo repos.CableVariantRepo,
	evidenceRepo repos.EvidenceSourceRepo,
	cache rediscache.QueryCache,
) RankingService {
	return &rankingService{
		log:          baseLog.With("service", "RankingService"),
		specRepo:     specRepo,
		variantRepo:  variantRepo,
		evidenceRepo: evidenceRepo,
		cache:        cache,
	}
}

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
	// scanFactor widens the spec scan so dedupe and quality filtering still
	// leave enough rows to fill the page.
	scanFactor = 40

	topCablesCacheTTL = 2 * time.Minute
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTopLimit
	}
	if limit > maxTopLimit {
		return maxTopLimit
	}
	return limit
}

// CompletenessScore weights the capability axes: power 5+2+1, data 4+3,
// video 2+1+1, evidence 1.
func CompletenessScore(power types.PowerSpec, data types.DataSpec, video types.VideoSpec, hasEvidence bool) int {
	score := 0
	if power.MaxWatts != nil {
		score += 5
	}
	if power.PDSupported != nil && *power.PDSupported {
		score += 2
	}
	if power.EPRSupported != nil && *power.EPRSupported {
		score += 1
	}
	if data.MaxGbps != nil {
		score += 4
	}
	if data.USBGeneration != nil {
		score += 3
	}
	if video.ExplicitlySupported != nil && *video.ExplicitlySupported {
		score += 2
	}
	if video.MaxResolution != nil {
		score += 1
	}
	if video.MaxRefreshHz != nil {
		score += 1
	}
	if hasEvidence {
		score += 1
	}
	return score
}

func (s *rankingService) TopCables(ctx context.Context, limit int, searchQuery string, includeStates []string) ([]CableSummary, error) {
	limit = clampLimit(limit)
	searchQuery = strings.TrimSpace(searchQuery)

	wanted := map[string]bool{types.QualityStateReady: true}
	for _, st := range includeStates {
		if st = strings.TrimSpace(st); st != "" {
			wanted[st] = true
		}
	}

	cacheKey := ""
	if s.cache != nil && searchQuery == "" {
		states := make([]string, 0, len(wanted))
		for st := range wanted {
			states = append(states, st)
		}
		sort.Strings(states)
		cacheKey = fmt.Sprintf("limit:%d|states:%s", limit, strings.Join(states, ","))
		var cached []CableSummary
		if s.cache.Get(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	candidates, err := s.collectCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}

	ready := candidates[:0]
	for _, c := range candidates {
		if wanted[c.QualityState] {
			ready = append(ready, c)
		}
	}

	if searchQuery != "" {
		rankBySearch(ready, searchQuery)
	} else {
		sort.SliceStable(ready, func(i, j int) bool {
			return ready[i].CompletenessScore > ready[j].CompletenessScore
		})
	}

	if len(ready) > limit {
		ready = ready[:limit]
	}
	out := append([]CableSummary(nil), ready...)

	if cacheKey != "" {
		s.cache.Set(ctx, cacheKey, out, topCablesCacheTTL)
	}
	return out, nil
}

func (s *rankingService) ReviewCables(ctx context.Context, limit int) ([]CableSummary, error) {
	limit = clampLimit(limit)
	candidates, err := s.collectCandidates(ctx, limit)
	if err != nil {
		return nil, err
	}
	var out []CableSummary
	for _, c := range candidates {
		if c.QualityState != types.QualityStateNeedsEnrichment {
			continue
		}
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// summarizeCable builds the query-facing row for a variant and its chosen
// spec.
func summarizeCable(v *types.CableVariant, spec *types.NormalizedSpec, score int) CableSummary {
	return CableSummary{
		VariantID:         v.ID,
		SpecID:            spec.ID,
		WorkflowID:        spec.WorkflowID,
		Brand:             v.Brand,
		Model:             v.Model,
		Variant:           v.Variant,
		SKU:               v.SKU,
		ConnectorFrom:     v.ConnectorFrom,
		ConnectorTo:       v.ConnectorTo,
		ProductURL:        v.ProductURL,
		ImageURLs:         v.ImageURLList(),
		QualityState:      v.QualityState,
		QualityIssues:     v.QualityIssueList(),
		Power:             spec.PowerSpec(),
		Data:              spec.DataSpec(),
		Video:             spec.VideoSpec(),
		CompletenessScore: score,
	}
}

// rankedCandidate carries the dedupe tie-break inputs alongside the
// query-facing summary.
type rankedCandidate struct {
	CableSummary
	fetchedAt time.Time
}

// collectCandidates scans the newest specs, keeps the best-scoring spec per
// variant, hydrates variants and evidence, prunes specs pointing at deleted
// variants, prunes legacy rows inside product groups and dedupes by
// (brand, sku).
func (s *rankingService) collectCandidates(ctx context.Context, limit int) ([]CableSummary, error) {
	scanLimit := limit * scanFactor
	if scanLimit < limit {
		scanLimit = limit
	}
	specs, err := s.specRepo.ListNewest(ctx, nil, scanLimit)
	if err != nil {
		return nil, err
	}

	type best struct {
		spec  *types.NormalizedSpec
		score int
	}
	bestByVariant := map[uuid.UUID]best{}
	var variantOrder []uuid.UUID
	for _, spec := range specs {
		score := CompletenessScore(spec.PowerSpec(), spec.DataSpec(), spec.VideoSpec(), len(spec.EvidenceRefList()) > 0)
		cur, ok := bestByVariant[spec.VariantID]
		if !ok {
			variantOrder = append(variantOrder, spec.VariantID)
		}
		// ListNewest is created_at desc, so on a score tie the newer spec
		// (seen first) wins.
		if !ok || score > cur.score {
			bestByVariant[spec.VariantID] = best{spec: spec, score: score}
		}
	}

	variants, err := s.variantRepo.GetByIDs(ctx, nil, variantOrder)
	if err != nil {
		return nil, err
	}
	variantByID := make(map[uuid.UUID]*types.CableVariant, len(variants))
	for _, v := range variants {
		variantByID[v.ID] = v
	}

	bestSpecs := make([]*types.NormalizedSpec, 0, len(variantOrder))
	for _, vid := range variantOrder {
		bestSpecs = append(bestSpecs, bestByVariant[vid].spec)
	}
	fetchedByID, err := s.evidenceFetchTimes(ctx, bestSpecs)
	if err != nil {
		return nil, err
	}

	var cands []rankedCandidate
	for _, vid := range variantOrder {
		v, ok := variantByID[vid]
		if !ok {
			// Spec outlived its variant; skip the orphan.
			continue
		}
		b := bestByVariant[vid]
		fetched := time.Time{}
		for _, id := range b.spec.EvidenceSourceIDList() {
			if at, ok := fetchedByID[id]; ok && at.After(fetched) {
				fetched = at
			}
		}
		cands = append(cands, rankedCandidate{
			fetchedAt:    fetched,
			CableSummary: summarizeCable(v, b.spec, b.score),
		})
	}

	cands = pruneLegacyRows(cands)

	bestIdx := map[string]int{}
	var deduped []rankedCandidate
	for _, c := range cands {
		if c.SKU == "" {
			deduped = append(deduped, c)
			continue
		}
		identity := strings.ToLower(c.Brand) + "\x00" + strings.ToLower(c.SKU)
		j, ok := bestIdx[identity]
		if !ok {
			bestIdx[identity] = len(deduped)
			deduped = append(deduped, c)
			continue
		}
		if duplicateBeats(c, deduped[j]) {
			deduped[j] = c
		}
	}

	out := make([]CableSummary, 0, len(deduped))
	for _, c := range deduped {
		out = append(out, c.CableSummary)
	}
	return out, nil
}

// evidenceFetchTimes resolves the fetch timestamp of every evidence source
// referenced by a best spec, in one batch.
func (s *rankingService) evidenceFetchTimes(ctx context.Context, specs []*types.NormalizedSpec) (map[uuid.UUID]time.Time, error) {
	var ids []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, spec := range specs {
		for _, id := range spec.EvidenceSourceIDList() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sources, err := s.evidenceRepo.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]time.Time, len(sources))
	for _, src := range sources {
		out[src.ID] = src.FetchedAt
	}
	return out, nil
}

// pruneLegacyRows drops stale duplicates inside a product group, keyed by
// product URL when present, else (brand, connector pair). Rows carrying
// variant signals (sku or variant label) displace bare rows, and a
// descriptive model displaces non-descriptive rows with a different model.
func pruneLegacyRows(cands []rankedCandidate) []rankedCandidate {
	groups := map[string][]int{}
	for i, c := range cands {
		key := strings.ToLower(strings.TrimSpace(c.ProductURL))
		if key == "" {
			key = strings.ToLower(c.Brand) + "\x00" + c.ConnectorFrom + "\x00" + c.ConnectorTo
		}
		groups[key] = append(groups[key], i)
	}

	drop := make([]bool, len(cands))
	for _, idxs := range groups {
		hasSignal := false
		var descriptive []string
		for _, i := range idxs {
			if cands[i].SKU != "" || cands[i].Variant != "" {
				hasSignal = true
			}
			if isDescriptiveModel(cands[i].Model) {
				descriptive = append(descriptive, cands[i].Model)
			}
		}
		for _, i := range idxs {
			if hasSignal && cands[i].SKU == "" && cands[i].Variant == "" {
				drop[i] = true
				continue
			}
			if len(descriptive) > 0 && !isDescriptiveModel(cands[i].Model) && !containsString(descriptive, cands[i].Model) {
				drop[i] = true
			}
		}
	}

	out := make([]rankedCandidate, 0, len(cands))
	for i, c := range cands {
		if !drop[i] {
			out = append(out, c)
		}
	}
	return out
}

func isDescriptiveModel(model string) bool {
	model = strings.TrimSpace(model)
	low := strings.ToLower(model)
	return strings.Contains(model, " ") || strings.Contains(low, "usb") || strings.Contains(low, "cable")
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// duplicateBeats decides which of two same-(brand, sku) rows survives:
// higher score, then length-neutral model, then newer evidence fetch, then
// longer model. The incumbent wins a full tie.
func duplicateBeats(challenger, incumbent rankedCandidate) bool {
	if challenger.CompletenessScore != incumbent.CompletenessScore {
		return challenger.CompletenessScore > incumbent.CompletenessScore
	}
	cLen := modelLengthToken.MatchString(challenger.Model)
	iLen := modelLengthToken.MatchString(incumbent.Model)
	if cLen != iLen {
		return iLen
	}
	if !challenger.fetchedAt.Equal(incumbent.fetchedAt) {
		return challenger.fetchedAt.After(incumbent.fetchedAt)
	}
	return len(challenger.Model) > len(incumbent.Model)
}

// rankBySearch re-ranks candidates for a free-text query. Connector-pair
// affinity outranks brand affinity, which outranks raw completeness; an
// explicit wattage in the query boosts cables meeting it.
func rankBySearch(cables []CableSummary, query string) {
	q := strings.ToLower(query)
	qTokens := strings.Fields(q)
	wantFrom, wantTo, _ := queryConnectorPair(q)
	wantWatts := queryWatts(q)

	scoreOf := func(c *CableSummary) int {
		score := c.CompletenessScore
		if wantFrom != "" {
			if (c.ConnectorFrom == wantFrom && c.ConnectorTo == wantTo) ||
				(c.ConnectorFrom == wantTo && c.ConnectorTo == wantFrom) {
				score += 100
			}
		}
		brand := strings.ToLower(c.Brand)
		for _, tok := range qTokens {
			if len(tok) >= 3 && editDistanceAtMost(tok, brand, 2) {
				score += 50
				break
			}
		}
		if wantWatts != nil && c.Power.MaxWatts != nil && *c.Power.MaxWatts >= *wantWatts {
			score += 25
		}
		return score
	}

	sort.SliceStable(cables, func(i, j int) bool {
		return scoreOf(&cables[i]) > scoreOf(&cables[j])
	})
}

// queryConnectorPair pulls an "X to Y" pair out of a free-text query.
func queryConnectorPair(q string) (from, to string, ok bool) {
	idx := strings.Index(q, " to ")
	if idx < 0 {
		return "", "", false
	}
	left := lastConnectorToken(q[:idx])
	right := firstConnectorToken(q[idx+4:])
	if left == "" || right == "" {
		return "", "", false
	}
	return left, right, true
}

var connectorQueryTokens = []struct {
	token string
	norm  string
}{
	{"usb-c", normalization.ConnectorUSBC},
	{"usb c", normalization.ConnectorUSBC},
	{"usbc", normalization.ConnectorUSBC},
	{"type-c", normalization.ConnectorUSBC},
	{"type c", normalization.ConnectorUSBC},
	{"usb-a", normalization.ConnectorUSBA},
	{"usb a", normalization.ConnectorUSBA},
	{"lightning", normalization.ConnectorLightning},
	{"lightening", normalization.ConnectorLightning},
	{"micro usb", normalization.ConnectorMicroUSB},
	{"micro-usb", normalization.ConnectorMicroUSB},
}

func lastConnectorToken(s string) string {
	best := ""
	bestIdx := -1
	for _, c := range connectorQueryTokens {
		if i := strings.LastIndex(s, c.token); i > bestIdx {
			bestIdx = i
			best = c.norm
		}
	}
	return best
}

func firstConnectorToken(s string) string {
	best := ""
	bestIdx := len(s) + 1
	for _, c := range connectorQueryTokens {
		if i := strings.Index(s, c.token); i >= 0 && i < bestIdx {
			bestIdx = i
			best = c.norm
		}
	}
	return best
}

func queryWatts(q string) *float64 {
	fields := strings.Fields(q)
	for _, f := range fields {
		if strings.HasSuffix(f, "w") && len(f) > 1 {
			if v := normalization.ParsePositiveNumber(f); v != nil && *v > 0 && *v <= 500 {
				return v
			}
		}
	}
	return nil
}

// editDistanceAtMost reports whether the Levenshtein distance between a and b
// is within max. Bounded, so typo-tolerant brand matching stays cheap.
func editDistanceAtMost(a, b string, max int) bool {
	la, lb := len(a), len(b)
	if la-lb > max || lb-la > max {
		return false
	}
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, minInt(cur[j-1]+1, prev[j-1]+cost))
			if cur[j] < rowMin {
				rowMin = cur[j]
			}
		}
		if rowMin > max {
			return false
		}
		prev, cur = cur, prev
	}
	return prev[lb] <= max
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
