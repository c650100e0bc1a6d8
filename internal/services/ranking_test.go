package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shpitdev/cable-intel/internal/normalization"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
)

func TestCompletenessScore(t *testing.T) {
	watts := 240.0
	pd := true
	epr := true
	gbps := 40.0
	gen := "USB4"
	video := true
	res := "8K"
	hz := 60.0

	full := CompletenessScore(
		types.PowerSpec{MaxWatts: &watts, PDSupported: &pd, EPRSupported: &epr},
		types.DataSpec{MaxGbps: &gbps, USBGeneration: &gen},
		types.VideoSpec{ExplicitlySupported: &video, MaxResolution: &res, MaxRefreshHz: &hz},
		true,
	)
	if full != 20 {
		t.Fatalf("full score = %d, want 20", full)
	}

	if got := CompletenessScore(types.PowerSpec{}, types.DataSpec{}, types.VideoSpec{}, false); got != 0 {
		t.Fatalf("empty score = %d, want 0", got)
	}

	// False booleans score nothing.
	no := false
	if got := CompletenessScore(
		types.PowerSpec{PDSupported: &no},
		types.DataSpec{},
		types.VideoSpec{ExplicitlySupported: &no},
		false,
	); got != 0 {
		t.Fatalf("false-flag score = %d, want 0", got)
	}

	if got := CompletenessScore(types.PowerSpec{MaxWatts: &watts}, types.DataSpec{MaxGbps: &gbps}, types.VideoSpec{}, true); got != 10 {
		t.Fatalf("watts+gbps+evidence = %d, want 10", got)
	}
}

func TestEditDistanceAtMost(t *testing.T) {
	cases := []struct {
		a, b string
		max  int
		want bool
	}{
		{"anker", "anker", 2, true},
		{"ankr", "anker", 2, true},
		{"ugren", "ugreen", 2, true},
		{"belkin", "anker", 2, false},
		{"a", "anker", 2, false},
		{"ankerr", "anker", 0, false},
	}
	for _, tc := range cases {
		if got := editDistanceAtMost(tc.a, tc.b, tc.max); got != tc.want {
			t.Fatalf("editDistanceAtMost(%q, %q, %d) = %v, want %v", tc.a, tc.b, tc.max, got, tc.want)
		}
	}
}

func TestQueryConnectorPair(t *testing.T) {
	from, to, ok := queryConnectorPair("best usb-c to lightning cable")
	if !ok || from != normalization.ConnectorUSBC || to != normalization.ConnectorLightning {
		t.Fatalf("pair = (%q, %q, %v)", from, to, ok)
	}
	if _, _, ok := queryConnectorPair("fast charging cable"); ok {
		t.Fatalf("no pair expected without ' to '")
	}
	if _, _, ok := queryConnectorPair("usb-c to nowhere"); ok {
		t.Fatalf("no pair expected without a right-hand connector")
	}
}

func TestQueryWatts(t *testing.T) {
	if got := queryWatts("240w usb-c cable"); got == nil || *got != 240 {
		t.Fatalf("queryWatts = %v, want 240", got)
	}
	if got := queryWatts("a 9999w cable"); got != nil {
		t.Fatalf("implausible wattage accepted: %v", got)
	}
	if got := queryWatts("usb-c cable"); got != nil {
		t.Fatalf("queryWatts = %v, want nil", got)
	}
}

type rankingFixture struct {
	svc      RankingService
	catalog  CatalogService
	variants repos.CableVariantRepo
	specs    repos.NormalizedSpecRepo
	evidence repos.EvidenceSourceRepo
}

func newRankingFixture(t *testing.T) *rankingFixture {
	t.Helper()
	gdb := newTestDB(t)
	log := newTestLogger(t)
	variants := repos.NewCableVariantRepo(gdb, log)
	specs := repos.NewNormalizedSpecRepo(gdb, log)
	evidence := repos.NewEvidenceSourceRepo(gdb, log)
	jobs := repos.NewEnrichmentJobRepo(gdb, log)
	return &rankingFixture{
		svc:      NewRankingService(log, specs, variants, evidence, nil),
		catalog:  NewCatalogService(gdb, log, variants, specs, jobs),
		variants: variants,
		specs:    specs,
		evidence: evidence,
	}
}

// seedVariant writes a variant plus one spec directly through the repos.
func (f *rankingFixture) seedVariant(t *testing.T, brand, model, sku, from, to string, quality string, power types.PowerSpec, data types.DataSpec) *types.CableVariant {
	t.Helper()
	ctx := context.Background()
	v, err := f.variants.Create(ctx, nil, &types.CableVariant{
		Brand:         brand,
		Model:         model,
		SKU:           sku,
		ConnectorFrom: from,
		ConnectorTo:   to,
		ProductURL:    "https://example.com/products/" + model,
		ImageURLs:     types.JSONFrom([]string{"https://example.com/img.jpg"}),
		QualityState:  quality,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	_, err = f.specs.Insert(ctx, nil, &types.NormalizedSpec{
		WorkflowID: uuid.New(),
		VariantID:  v.ID,
		Power:      types.JSONFrom(power),
		Data:       types.JSONFrom(data),
		Video:      types.JSONFrom(types.VideoSpec{}),
		EvidenceRefs: types.JSONFrom([]types.EvidenceRef{
			{FieldPath: types.FieldPathBrand, SourceID: uuid.New()},
		}),
	})
	if err != nil {
		t.Fatalf("insert spec: %v", err)
	}
	return v
}

func TestTopCablesRanksAndFilters(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 240.0
	gbps := 40.0
	gen := "USB4"

	rich := f.seedVariant(t, "Anker", "765 Cable", "A1", "USB-C", "USB-C",
		types.QualityStateReady,
		types.PowerSpec{MaxWatts: &watts},
		types.DataSpec{MaxGbps: &gbps, USBGeneration: &gen})
	poor := f.seedVariant(t, "UGREEN", "Basic Cable", "U1", "USB-A", "USB-C",
		types.QualityStateReady,
		types.PowerSpec{}, types.DataSpec{})
	f.seedVariant(t, "NoName", "Mystery Cable", "", "USB-C", "USB-C",
		types.QualityStateNeedsEnrichment,
		types.PowerSpec{}, types.DataSpec{})

	out, err := f.svc.TopCables(ctx, 10, "", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("results = %d, want 2 ready cables", len(out))
	}
	if out[0].VariantID != rich.ID || out[1].VariantID != poor.ID {
		t.Fatalf("order = [%s %s], want richest first", out[0].Model, out[1].Model)
	}
	if out[0].CompletenessScore <= out[1].CompletenessScore {
		t.Fatalf("scores not descending: %d then %d", out[0].CompletenessScore, out[1].CompletenessScore)
	}
}

func TestTopCablesDedupesByBrandSKU(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 100.0
	gbps := 10.0

	rich := f.seedVariant(t, "Anker", "Cable Black", "A1", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{MaxWatts: &watts}, types.DataSpec{MaxGbps: &gbps})
	f.seedVariant(t, "Anker", "Cable White", "A1", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{}, types.DataSpec{})
	f.seedVariant(t, "Anker", "Cable NoSKU", "", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{MaxWatts: &watts}, types.DataSpec{})

	out, err := f.svc.TopCables(ctx, 10, "", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	// The two A1 rows collapse to one; the empty SKU row never dedupes.
	if len(out) != 2 {
		t.Fatalf("results = %d, want 2 after (brand, sku) dedupe", len(out))
	}
	for _, c := range out {
		if c.SKU == "A1" && c.VariantID != rich.ID {
			t.Fatalf("A1 survivor = %s, want the higher-scoring row despite the newer duplicate", c.Model)
		}
	}
}

func TestTopCablesDedupeTieBreaksOnModelAndFetch(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 100.0

	// Equal scores; the model without a length token survives.
	neutral := f.seedVariant(t, "Anker", "PowerLine III", "A1", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{MaxWatts: &watts}, types.DataSpec{})
	f.seedVariant(t, "Anker", "PowerLine III 6ft", "A1", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{MaxWatts: &watts}, types.DataSpec{})

	out, err := f.svc.TopCables(ctx, 10, "", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(out) != 1 || out[0].VariantID != neutral.ID {
		t.Fatalf("survivor = %+v, want the length-neutral model", out)
	}
}

func TestTopCablesDedupePrefersNewerEvidence(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 100.0
	wfID := uuid.New()

	seed := func(model, url string, fetchedAt time.Time) *types.CableVariant {
		t.Helper()
		v, err := f.variants.Create(ctx, nil, &types.CableVariant{
			Brand:         "Anker",
			Model:         model,
			SKU:           "A1",
			ConnectorFrom: "USB-C",
			ConnectorTo:   "USB-C",
			ProductURL:    url,
			QualityState:  types.QualityStateReady,
		})
		if err != nil {
			t.Fatalf("create variant: %v", err)
		}
		src, err := f.evidence.Insert(ctx, nil, &types.EvidenceSource{
			WorkflowID:   wfID,
			URL:          url,
			CanonicalURL: url,
			FetchedAt:    fetchedAt,
			ContentHash:  types.ContentHash(url, "md", "html"),
		})
		if err != nil {
			t.Fatalf("insert evidence: %v", err)
		}
		if _, err := f.specs.Insert(ctx, nil, &types.NormalizedSpec{
			WorkflowID:        wfID,
			VariantID:         v.ID,
			EvidenceSourceIDs: types.JSONFrom([]uuid.UUID{src.ID}),
			Power:             types.JSONFrom(types.PowerSpec{MaxWatts: &watts}),
		}); err != nil {
			t.Fatalf("insert spec: %v", err)
		}
		return v
	}

	old := time.Now().UTC().Add(-48 * time.Hour)
	seed("Silk Black", "https://example.com/products/silk-black", old)
	fresh := seed("Silk White", "https://example.com/products/silk-white", time.Now().UTC())

	out, err := f.svc.TopCables(ctx, 10, "", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(out) != 1 || out[0].VariantID != fresh.ID {
		t.Fatalf("survivor = %+v, want the row with the newer evidence fetch", out)
	}
}

func TestTopCablesDropsSupersededBareRow(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 100.0

	// Same product URL: one row carries a sku, the other predates variant
	// parsing and has neither sku nor variant label.
	keeper := f.seedVariant(t, "Anker", "PowerLine III", "A8852", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{MaxWatts: &watts}, types.DataSpec{})
	f.seedVariant(t, "Anker", "PowerLine III", "", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{MaxWatts: &watts}, types.DataSpec{})

	out, err := f.svc.TopCables(ctx, 10, "", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(out) != 1 || out[0].VariantID != keeper.ID {
		t.Fatalf("results = %+v, want only the sku-bearing row", out)
	}
}

func TestTopCablesDropsRenamedModelRow(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 100.0
	url := "https://example.com/products/powerline"

	seed := func(model, sku string) *types.CableVariant {
		t.Helper()
		v, err := f.variants.Create(ctx, nil, &types.CableVariant{
			Brand:         "Anker",
			Model:         model,
			SKU:           sku,
			Variant:       "Black",
			ConnectorFrom: "USB-C",
			ConnectorTo:   "USB-C",
			ProductURL:    url,
			QualityState:  types.QualityStateReady,
		})
		if err != nil {
			t.Fatalf("create variant: %v", err)
		}
		if _, err := f.specs.Insert(ctx, nil, &types.NormalizedSpec{
			WorkflowID: uuid.New(),
			VariantID:  v.ID,
			Power:      types.JSONFrom(types.PowerSpec{MaxWatts: &watts}),
		}); err != nil {
			t.Fatalf("insert spec: %v", err)
		}
		return v
	}

	// An early scrape stored the bare sku as the model; the rename to the real
	// product name supersedes it.
	named := seed("Anker PowerLine Cable", "A1")
	seed("A8652", "A2")

	out, err := f.svc.TopCables(ctx, 10, "", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(out) != 1 || out[0].VariantID != named.ID {
		t.Fatalf("results = %+v, want the descriptive model to displace the bare one", out)
	}
}

func TestTopCablesIncludeStatesWidensFilter(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 100.0

	f.seedVariant(t, "Anker", "765 Cable", "A1", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{MaxWatts: &watts}, types.DataSpec{})
	flagged := f.seedVariant(t, "NoName", "Mystery Cable", "", "USB-C", "USB-C",
		types.QualityStateNeedsEnrichment, types.PowerSpec{}, types.DataSpec{})

	out, err := f.svc.TopCables(ctx, 10, "", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("default results = %d, want ready only", len(out))
	}

	widened, err := f.svc.TopCables(ctx, 10, "", []string{types.QualityStateNeedsEnrichment})
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(widened) != 2 {
		t.Fatalf("widened results = %d, want ready plus needs_enrichment", len(widened))
	}
	found := false
	for _, c := range widened {
		if c.VariantID == flagged.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("widened results missing the needs_enrichment variant")
	}
}

func TestTopCablesPrunesOrphanSpecs(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()

	if _, err := f.specs.Insert(ctx, nil, &types.NormalizedSpec{
		WorkflowID: uuid.New(),
		VariantID:  uuid.New(), // no such variant
		Power:      types.JSONFrom(types.PowerSpec{}),
		Data:       types.JSONFrom(types.DataSpec{}),
		Video:      types.JSONFrom(types.VideoSpec{}),
	}); err != nil {
		t.Fatalf("insert orphan spec: %v", err)
	}

	out, err := f.svc.TopCables(ctx, 10, "", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("results = %d, want orphan pruned", len(out))
	}
}

func TestTopCablesSearchBoostsConnectorPair(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 240.0
	gbps := 40.0
	gen := "USB4"
	small := 20.0

	f.seedVariant(t, "Anker", "765 Cable", "A1", "USB-C", "USB-C",
		types.QualityStateReady,
		types.PowerSpec{MaxWatts: &watts},
		types.DataSpec{MaxGbps: &gbps, USBGeneration: &gen})
	lightning := f.seedVariant(t, "Belkin", "Boost Charge", "B1", "USB-C", "Lightning",
		types.QualityStateReady,
		types.PowerSpec{MaxWatts: &small}, types.DataSpec{})

	out, err := f.svc.TopCables(ctx, 10, "usb-c to lightning cable", nil)
	if err != nil {
		t.Fatalf("TopCables: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("results = %d, want 2", len(out))
	}
	if out[0].VariantID != lightning.ID {
		t.Fatalf("top result = %s, want the Lightning pair despite the lower score", out[0].Model)
	}
}

func TestReviewCablesListsNeedsEnrichment(t *testing.T) {
	f := newRankingFixture(t)
	ctx := context.Background()
	watts := 100.0

	f.seedVariant(t, "Anker", "765 Cable", "A1", "USB-C", "USB-C",
		types.QualityStateReady, types.PowerSpec{MaxWatts: &watts}, types.DataSpec{})
	flagged := f.seedVariant(t, "NoName", "Mystery Cable", "", "USB-C", "USB-C",
		types.QualityStateNeedsEnrichment, types.PowerSpec{}, types.DataSpec{})

	out, err := f.svc.ReviewCables(ctx, 10)
	if err != nil {
		t.Fatalf("ReviewCables: %v", err)
	}
	if len(out) != 1 || out[0].VariantID != flagged.ID {
		t.Fatalf("review list = %+v, want only the flagged variant", out)
	}
}
