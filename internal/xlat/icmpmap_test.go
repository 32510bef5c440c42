package xlat_test

import (
	"testing"

	"github.com/go-xlat/xlat64/internal/xlat"
)

func TestMapICMP6to4EchoRequest(t *testing.T) {
	outType, outCode, ok := xlat.MapICMP6to4(128, 0)
	if !ok || outType != 8 || outCode != 0 {
		t.Fatalf("Echo Request map = %d/%d,%v; want 8/0,true", outType, outCode, ok)
	}
}

func TestMapICMP6to4EverythingElseUntranslatable(t *testing.T) {
	_, _, ok := xlat.MapICMP6to4(200, 0)
	if ok {
		t.Fatal("expected unknown type to be untranslatable")
	}
}

func TestParamProblemPointerMapScenario7(t *testing.T) {
	// spec scenario 7: Parameter-Problem pointer 5 (Payload-Length) maps to v4 pointer 2.
	got, ok := xlat.ParamProblemPointerMap(5)
	if !ok || got != 2 {
		t.Fatalf("pointer 5 -> %d,%v; want 2,true", got, ok)
	}
}

func TestParamProblemPointerMapScenario8Untranslatable(t *testing.T) {
	// spec scenario 8: Parameter-Problem pointer 2 (Flow-Label) is untranslatable.
	_, ok := xlat.ParamProblemPointerMap(2)
	if ok {
		t.Fatal("expected pointer 2 to be untranslatable")
	}
}

func TestParamProblemPointerMapTable(t *testing.T) {
	cases := []struct {
		in      uint32
		want    uint8
		wantOK  bool
	}{
		{0, 0, true},
		{1, 1, true},
		{3, 0, false},
		{4, 2, true},
		{6, 9, true},
		{7, 8, true},
		{8, 12, true},
		{23, 12, true},
		{24, 16, true},
		{1000, 16, true},
	}
	for _, c := range cases {
		got, ok := xlat.ParamProblemPointerMap(c.in)
		if ok != c.wantOK || (ok && got != c.want) {
			t.Errorf("pointer %d -> %d,%v; want %d,%v", c.in, got, ok, c.want, c.wantOK)
		}
	}
}

func TestComputeMTU4Scenario4(t *testing.T) {
	// spec scenario 4: min(1400-20, 1500, 1500-20) = 1380.
	got := xlat.ComputeMTU4(1400, 1500, 1500)
	if got != 1380 {
		t.Fatalf("ComputeMTU4 = %d, want 1380", got)
	}
}
