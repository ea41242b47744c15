package pagination

import "testing"

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{10, 10},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tc := range cases {
		if got := NormalizeLimit(tc.in); got != tc.want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParamsNormalize(t *testing.T) {
	p := Params{Limit: -1, Offset: -10}.Normalize()
	if p.Limit != DefaultLimit {
		t.Fatalf("expected default limit, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Fatalf("expected offset clamped to 0, got %d", p.Offset)
	}
}

func TestLimitWithBuffer(t *testing.T) {
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
}
