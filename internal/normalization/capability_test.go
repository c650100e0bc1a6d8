package normalization

import "testing"

func TestParsePositiveNumber(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want *float64
	}{
		{name: "max_of_list", in: "60, 100, 240W", want: f(240)},
		{name: "empty", in: "", want: nil},
		{name: "no_tokens", in: "fast charging", want: nil},
		{name: "single", in: "100W", want: f(100)},
		{name: "decimal", in: "0.48 Gbps", want: f(0.48)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParsePositiveNumber(tc.in)
			if (got == nil) != (tc.want == nil) {
				t.Fatalf("ParsePositiveNumber(%q)=%v, want %v", tc.in, got, tc.want)
			}
			if got != nil && *got != *tc.want {
				t.Fatalf("ParsePositiveNumber(%q)=%v, want %v", tc.in, *got, *tc.want)
			}
		})
	}
}

func TestNormalizeConnector(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"USB-C", ConnectorUSBC},
		{"  usb c  ", ConnectorUSBC},
		{"Type-C", ConnectorUSBC},
		{"USB A", ConnectorUSBA},
		{"Lightning", ConnectorLightning},
		{"lightening", ConnectorLightning},
		{"Micro USB", ConnectorMicroUSB},
		{"HDMI", ConnectorUnknown},
		{"", ConnectorUnknown},
	}
	for _, tc := range cases {
		if got := NormalizeConnector(tc.in); got != tc.want {
			t.Fatalf("NormalizeConnector(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInferMaxGbpsFromGeneration(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want *float64
	}{
		{name: "usb4_and_tb4", in: "USB 3.2 Gen 2 / USB4 / TB4", want: f(40)},
		{name: "explicit_beats_inferred", in: "USB 3.2 Gen 2, 20Gbps", want: f(20)},
		{name: "inferred_beats_explicit", in: "USB4 cable, 10 Gbps fallback mode", want: f(40)},
		{name: "gen_2x2", in: "USB 3.2 Gen 2x2", want: f(20)},
		{name: "usb4_v2", in: "USB4 v2", want: f(80)},
		{name: "thunderbolt_5", in: "Thunderbolt 5", want: f(80)},
		{name: "usb_2", in: "USB 2.0 charging cable", want: f(0.48)},
		{name: "usb2_not_240w", in: "240W fast charging", want: nil},
		{name: "plain_usb3", in: "USB 3.0", want: f(5)},
		{name: "nothing", in: "braided nylon", want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := InferMaxGbpsFromGeneration(tc.in)
			if (got == nil) != (tc.want == nil) {
				t.Fatalf("InferMaxGbpsFromGeneration(%q)=%v, want %v", tc.in, got, tc.want)
			}
			if got != nil && *got != *tc.want {
				t.Fatalf("InferMaxGbpsFromGeneration(%q)=%v, want %v", tc.in, *got, *tc.want)
			}
		})
	}
}

func TestResolutionRank(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"720p", 1},
		{"1080p", 2},
		{"FHD", 2},
		{"1440p", 3},
		{"2K", 3},
		{"4K", 4},
		{"2160p", 4},
		{"5K", 5},
		{"8K", 6},
		{"4320p", 6},
		{"unknown", 0},
	}
	for _, tc := range cases {
		if got := ResolutionRank(tc.in); got != tc.want {
			t.Fatalf("ResolutionRank(%q)=%d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClampDataCapabilityByConnector(t *testing.T) {
	gen := "Thunderbolt 3"
	gbps := 40.0
	outGen, outGbps := ClampDataCapabilityByConnector(ConnectorUSBC, ConnectorLightning, &gen, &gbps)
	if outGbps == nil || *outGbps != LightningMaxGbps {
		t.Fatalf("expected clamp to %v, got %v", LightningMaxGbps, outGbps)
	}
	if outGen == nil || *outGen != "USB 2.0 (Lightning ceiling)" {
		t.Fatalf("expected USB 2.0 generation rewrite, got %v", outGen)
	}

	// Non-Lightning pairs pass through untouched.
	gen2 := "USB4"
	gbps2 := 40.0
	outGen, outGbps = ClampDataCapabilityByConnector(ConnectorUSBC, ConnectorUSBC, &gen2, &gbps2)
	if *outGen != "USB4" || *outGbps != 40.0 {
		t.Fatalf("expected passthrough, got %v %v", *outGen, *outGbps)
	}

	// A generation already mentioning USB 2 is preserved.
	gen3 := "USB 2.0"
	outGen, _ = ClampDataCapabilityByConnector(ConnectorLightning, ConnectorUSBA, &gen3, nil)
	if *outGen != "USB 2.0" {
		t.Fatalf("expected USB 2.0 preserved, got %v", *outGen)
	}
}

func f(v float64) *float64 { return &v }
