package extract

import "testing"

func TestParseMetric(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"pure digits", "1200", 1200},
		{"zero", "0", 0},
		{"lower k", "1.5k", 1500},
		{"upper K", "12K", 12000},
		{"lower m", "1.5m", 1500000},
		{"upper M", "2M", 2000000},
		{"truncation", "1.2345k", 1234},
		{"unparsable dashes", "--", 0},
		{"empty", "", 0},
		{"whitespace", "  42 ", 42},
		{"suffix only", "k", 0},
		{"negative", "-5", 0},
		{"plain decimal has no suffix", "1.5", 0},
		{"garbage", "likes", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseMetric(tt.in); got != tt.want {
				t.Errorf("ParseMetric(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
