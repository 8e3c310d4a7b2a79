package chain

import (
	"testing"
)

func TestResolveDecimal(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{name: "one whole unit six decimals", value: "1.0", decimals: 6, want: "1000000"},
		{name: "fifty units", value: "50", decimals: 6, want: "50000000"},
		{name: "fractional", value: "1.5", decimals: 6, want: "1500000"},
		{name: "eighteen decimals", value: "0.5", decimals: 18, want: "500000000000000000"},
		{name: "rounds half up", value: "0.0000015", decimals: 6, want: "2"},
		{name: "rounds down below half", value: "0.0000014", decimals: 6, want: "1"},
		{name: "zero rejected", value: "0", decimals: 6, wantErr: true},
		{name: "negative rejected", value: "-1", decimals: 6, wantErr: true},
		{name: "not a number", value: "fifty", decimals: 6, wantErr: true},
		{name: "empty", value: "", decimals: 6, wantErr: true},
		{name: "rounds to zero rejected", value: "0.0000001", decimals: 6, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := FromDecimal(tt.value, "USDC").Resolve(tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Resolve(%q, %d) = %s, want error", tt.value, tt.decimals, units)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q, %d): %v", tt.value, tt.decimals, err)
			}
			if units.String() != tt.want {
				t.Errorf("Resolve(%q, %d) = %s, want %s", tt.value, tt.decimals, units, tt.want)
			}
		})
	}
}

func TestResolveBaseUnitsPassThrough(t *testing.T) {
	units, err := FromBaseUnits(1000000, "USDC").Resolve(6)
	if err != nil {
		t.Fatal(err)
	}
	if units.String() != "1000000" {
		t.Errorf("units = %s", units)
	}

	// Base units are already denominated; decimals must not rescale them.
	same, err := FromBaseUnits(1000000, "USDC").Resolve(18)
	if err != nil {
		t.Fatal(err)
	}
	if same.String() != "1000000" {
		t.Errorf("units at 18 decimals = %s, want 1000000", same)
	}
}

func TestAmountString(t *testing.T) {
	if got := FromDecimal("1.5", "usdc").String(); got != "1.5 USDC" {
		t.Errorf("String() = %q", got)
	}
	if got := FromBaseUnits(42, "USDC").String(); got != "42 base units USDC" {
		t.Errorf("String() = %q", got)
	}
}
