package isolation

import "testing"

func TestRandomOutsideStartStaysInRange(t *testing.T) {
	rng := SubIDRange{Start: 100000, End: 165536}
	for i := 0; i < 100; i++ {
		start, err := randomOutsideStart(rng, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if start < rng.Start || start+2 > rng.End {
			t.Fatalf("start %d leaves no room for 2 ids in [%d, %d)", start, rng.Start, rng.End)
		}
	}
}

func TestRandomOutsideStartRejectsTooSmallRange(t *testing.T) {
	rng := SubIDRange{Start: 100, End: 101}
	if _, err := randomOutsideStart(rng, 2); err == nil {
		t.Fatal("expected an error when the range can't fit count consecutive ids")
	}
}

func TestSubIDRangeOverrideBypassesFile(t *testing.T) {
	override := &SubIDRange{Start: 500000, End: 600000}
	got, err := subIDRange("/does/not/exist", override)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != *override {
		t.Fatalf("expected override to be returned verbatim, got %+v", got)
	}
}

func TestSubIDRangeMissingFileErrors(t *testing.T) {
	if _, err := subIDRange("/does/not/exist/subuid", nil); err == nil {
		t.Fatal("expected an error for a missing subuid file")
	}
}
