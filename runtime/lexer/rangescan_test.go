package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScanRange(t *testing.T) {
	tests := []struct {
		raw  string
		want []RangeText
	}{
		{"7", []RangeText{{Start: "7"}}},
		{"A", []RangeText{{Handle: "A"}}},
		{"A1-3", []RangeText{{Handle: "A", Start: "1", End: "3"}}},
		{"B5-1", []RangeText{{Handle: "B", Start: "5", End: "1"}}},
		{"Aodd", []RangeText{{Handle: "A", Qualifier: "odd"}}},
		{"1-endeven", []RangeText{{Start: "1", End: "end", Qualifier: "even"}}},
		{"r3-r1east", []RangeText{{Start: "r3", End: "r1", Rotation: "east"}}},
		{"AAeven", []RangeText{{Handle: "AA", Qualifier: "even"}}},
		{"2-endoddsouth", []RangeText{{Start: "2", End: "end", Qualifier: "odd", Rotation: "south"}}},
		{"1-10~3-5", []RangeText{{Start: "1", End: "10", Excludes: []RangeText{{Start: "3", End: "5"}}}}},
		{"~even", []RangeText{{Excludes: []RangeText{{Qualifier: "even"}}}}},
		{"Adown~2~r1", []RangeText{{Handle: "A", Rotation: "down", Excludes: []RangeText{{Start: "2"}, {Start: "r1"}}}}},
		{"A1,B2-3left", []RangeText{{Handle: "A", Start: "1"}, {Handle: "B", Start: "2", End: "3", Rotation: "left"}}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ScanRange(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("scan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanRangeRejects(t *testing.T) {
	for _, raw := range []string{"", "1-", "a1", "1x", "1-3~", "1,", "rend", "1evenodd", "A1-B3"} {
		t.Run(raw, func(t *testing.T) {
			if _, err := ScanRange(raw); err == nil {
				t.Errorf("expected %q to be rejected", raw)
			}
		})
	}
}

func TestLooksLikeRange(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"1-", true},
		{"A1x", true},
		{"~", true},
		{"notes.txt", false},
		{"data", false},
		{"A", false},
		{"report-2024.pdf", false},
	}
	for _, tt := range tests {
		if got := looksLikeRange(tt.raw); got != tt.want {
			t.Errorf("looksLikeRange(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
