package moderation

import (
	"strings"
	"testing"
)

func TestDetectorFlagsHighOutlier(t *testing.T) {
	d := DefaultDetector()
	history := []float64{100, 100, 100, 100, 100, 131}

	v := d.Evaluate(131, history)
	if !v.Flagged {
		t.Fatal("131 against mean 100 must be flagged")
	}
	if !strings.Contains(v.Reason, "131") {
		t.Errorf("reason %q missing the submitted price", v.Reason)
	}
	if !strings.Contains(v.Reason, "100.00") {
		t.Errorf("reason %q missing the two-decimal mean", v.Reason)
	}
}

func TestDetectorAllowsWithinBand(t *testing.T) {
	d := DefaultDetector()
	history := []float64{100, 100, 100, 100, 100, 129}

	if v := d.Evaluate(129, history); v.Flagged {
		t.Errorf("129 against mean 100 flagged: %q", v.Reason)
	}
	// 130 is exactly 1.3x the mean, still inside the band.
	if v := d.Evaluate(130, []float64{100, 100, 100, 100, 100, 130}); v.Flagged {
		t.Errorf("exactly 1.3x flagged: %q", v.Reason)
	}
}

func TestDetectorFlagsLowOutlier(t *testing.T) {
	d := DefaultDetector()
	history := []float64{100, 100, 100, 69}

	v := d.Evaluate(69, history)
	if !v.Flagged {
		t.Fatal("69 against mean 100 must be flagged")
	}
}

func TestDetectorEmptyWindowNeverFlags(t *testing.T) {
	d := DefaultDetector()

	if v := d.Evaluate(1999, []float64{1999}); v.Flagged {
		t.Error("first ever price flagged with no history")
	}
	if v := d.Evaluate(1999, nil); v.Flagged {
		t.Error("nil history flagged")
	}
}

func TestDetectorWindowExcludesNewestAndCapsAtFive(t *testing.T) {
	d := DefaultDetector()

	// Seven approved entries; the window is the five before the newest:
	// [100, 100, 100, 100, 100]. The leading 1000s must fall outside it.
	history := []float64{1000, 100, 100, 100, 100, 100, 131}
	v := d.Evaluate(131, history)
	if !v.Flagged {
		t.Fatal("window should exclude entries older than five back")
	}
	if !strings.Contains(v.Reason, "100.00") {
		t.Errorf("reason %q, want mean over the last five prior entries", v.Reason)
	}
}

func TestDetectorShortWindow(t *testing.T) {
	d := DefaultDetector()

	// Two prior entries only: mean 650.
	v := d.Evaluate(1000, []float64{600, 700, 1000})
	if !v.Flagged {
		t.Error("1000 against mean 650 must be flagged")
	}
	if !strings.Contains(v.Reason, "650.00") {
		t.Errorf("reason %q, want mean 650.00", v.Reason)
	}
}

func TestDetectorReasonFormat(t *testing.T) {
	d := DefaultDetector()

	v := d.Evaluate(650.5, []float64{400, 650.5})
	if v.Reason != "Suspicious: 650.5, avg ~400.00" {
		t.Errorf("reason = %q", v.Reason)
	}

	v = d.Evaluate(650, []float64{400, 650})
	if v.Reason != "Suspicious: 650, avg ~400.00" {
		t.Errorf("whole prices should print without decimals, got %q", v.Reason)
	}
}
