package trust

import "testing"

func TestConfidence(t *testing.T) {
	tests := []struct {
		n    uint64
		want uint64
	}{
		{0, 0},
		{1, 16},
		{4, 64},
		{5, 80},
		{6, 81},  // 80 + 4/3
		{8, 84},  // 80 + 12/3
		{19, 98}, // 80 + 56/3
		{20, 100},
		{500, 100},
	}

	for _, tt := range tests {
		got := Confidence(tt.n)
		if got != tt.want {
			t.Errorf("Confidence(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestConfidence_NonDecreasing(t *testing.T) {
	prev := uint64(0)
	for n := uint64(0); n <= 40; n++ {
		c := Confidence(n)
		if c < prev {
			t.Fatalf("confidence decreased at n=%d: %d < %d", n, c, prev)
		}
		if c > 100 {
			t.Fatalf("confidence above 100 at n=%d: %d", n, c)
		}
		prev = c
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		tws    uint64
		tw     uint64
		active uint64
		want   uint8
	}{
		{"no ratings", 0, 0, 0, 0},
		{"single five star", 5, 1, 1, 16},
		{"five five-star raters", 25, 5, 5, 80},
		{"twenty five-star raters", 100, 20, 20, 100},
		{"nineteen five-star raters", 95, 19, 19, 98},
		{"single one star", 1, 1, 1, 3},         // base 20 * 16 / 100
		{"mixed weighted", 5*3 + 1*1, 4, 2, 25}, // base 80 * 32 / 100
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.tws, tt.tw, tt.active)
			if got != tt.want {
				t.Errorf("Score(%d, %d, %d) = %d, want %d", tt.tws, tt.tw, tt.active, got, tt.want)
			}
		})
	}
}

func TestBaseScore_ZeroWeight(t *testing.T) {
	if got := BaseScore(10, 0); got != 0 {
		t.Errorf("expected 0 base score for zero weight, got %d", got)
	}
}
