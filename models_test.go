package sensocto

import "testing"

func TestAttentionLevelRecommendedMapping(t *testing.T) {
	cases := []struct {
		level      AttentionLevel
		wantWindow int64
		wantSize   int
	}{
		{AttentionHigh, 100, 1},
		{AttentionMedium, 500, 5},
		{AttentionLow, 2000, 10},
		{AttentionNone, 5000, 20},
	}
	for _, tc := range cases {
		if got := tc.level.RecommendedBatchWindowMs(); got != tc.wantWindow {
			t.Errorf("%s.RecommendedBatchWindowMs() = %d, want %d", tc.level, got, tc.wantWindow)
		}
		if got := tc.level.RecommendedBatchSize(); got != tc.wantSize {
			t.Errorf("%s.RecommendedBatchSize() = %d, want %d", tc.level, got, tc.wantSize)
		}
	}
}

func TestNormalizeAttentionLevelDefaultsUnknownToNone(t *testing.T) {
	cases := []struct {
		in   string
		want AttentionLevel
	}{
		{"low", AttentionLow},
		{"medium", AttentionMedium},
		{"high", AttentionHigh},
		{"none", AttentionNone},
		{"", AttentionNone},
		{"critical", AttentionNone},
	}
	for _, tc := range cases {
		if got := normalizeAttentionLevel(tc.in); got != tc.want {
			t.Errorf("normalizeAttentionLevel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDefaultBackpressureState(t *testing.T) {
	s := defaultBackpressureState()
	if s.AttentionLevel != AttentionNone || s.BatchWindowMs != 5000 || s.BatchSize != 20 {
		t.Errorf("defaultBackpressureState() = %+v", s)
	}
}
