package simhash

import "testing"

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint("This song is AMAZING!!!")
	b := Fingerprint("this song is amazing")
	if a != b {
		t.Errorf("case and punctuation should not change the fingerprint: %x vs %x", a, b)
	}
}

func TestFingerprintEmpty(t *testing.T) {
	if fp := Fingerprint("   \t\n"); fp != 0 {
		t.Errorf("whitespace-only text should fingerprint to 0, got %x", fp)
	}
}

func TestNearDuplicates(t *testing.T) {
	base := Fingerprint("love this video so much, the editing is incredible")
	tweaked := Fingerprint("love this video so much, the editing is amazing")
	unrelated := Fingerprint("first comment lol")

	if !Near(base, tweaked, 16) {
		t.Errorf("single-word change should stay near: distance %d", Distance(base, tweaked))
	}
	if Near(base, unrelated, 3) {
		t.Errorf("unrelated texts should not be near at a tight threshold: distance %d", Distance(base, unrelated))
	}
}

func TestDistance(t *testing.T) {
	cases := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xDEADBEEF, 0xDEADBEEF, 0},
		{"one bit", 0b1000, 0b0000, 1},
		{"all bits", 0, ^uint64(0), 64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Distance(tc.a, tc.b); got != tc.want {
				t.Errorf("Distance(%x, %x) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestShortTexts(t *testing.T) {
	// Texts below the shingle window still fingerprint on raw tokens.
	a := Fingerprint("nice")
	b := Fingerprint("nice")
	if a == 0 || a != b {
		t.Errorf("single-token text should produce a stable non-zero fingerprint, got %x and %x", a, b)
	}
}
