package ingest

import (
	"testing"

	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/models"
)

func TestClassify(t *testing.T) {
	rules := DefaultRules()

	cases := []struct {
		name    string
		tier    hierarchy.Tier
		matched bool
	}{
		{"Nave 5", hierarchy.TierWarehouse, true},
		{"nave5", hierarchy.TierWarehouse, true},
		{"NAVE 12", hierarchy.TierWarehouse, true},
		{"Nave 5 norte", hierarchy.TierArea, true}, // qualified = zone, not warehouse
		{"Sombraculo 1", hierarchy.TierArea, true},
		{"somb 3", hierarchy.TierArea, true},
		{"Tunnel 2", hierarchy.TierArea, true},
		{"Madres nave 1", hierarchy.TierArea, true},
		{"Cantero somb 1", hierarchy.TierLocation, true},
		{"Cantero 14 nave 2", hierarchy.TierLocation, true},
		{"Oficina", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		tier, ok := rules.Classify(tc.name)
		if ok != tc.matched {
			t.Errorf("Classify(%q) matched = %v, want %v", tc.name, ok, tc.matched)
			continue
		}
		if ok && tier != tc.tier {
			t.Errorf("Classify(%q) = %s, want %s", tc.name, tier, tc.tier)
		}
	}
}

func TestPositionExtraction(t *testing.T) {
	rules := DefaultRules()

	if pos := rules.Position("Nave 5 norte"); pos == nil || *pos != models.PositionNorth {
		t.Errorf("Position(Nave 5 norte) = %v, want N", pos)
	}
	if pos := rules.Position("Nave 2 sur"); pos == nil || *pos != models.PositionSouth {
		t.Errorf("Position(Nave 2 sur) = %v, want S", pos)
	}
	if pos := rules.Position("Sombraculo 1"); pos != nil {
		t.Errorf("Position(Sombraculo 1) = %v, want nil", pos)
	}
}

func TestFacilityDerivation(t *testing.T) {
	rules := DefaultRules()

	if ft := rules.Facility("Nave 5"); ft != models.FacilityGreenhouse {
		t.Errorf("Facility(Nave 5) = %s, want greenhouse", ft)
	}
	if ft := rules.Facility("Sombraculo 2"); ft != models.FacilityShadehouse {
		t.Errorf("Facility(Sombraculo 2) = %s, want shadehouse", ft)
	}
	if ft := rules.Facility("Tunnel 1"); ft != models.FacilityTunnel {
		t.Errorf("Facility(Tunnel 1) = %s, want tunnel", ft)
	}
}

func TestTokenExtraction(t *testing.T) {
	rules := DefaultRules()

	if num := rules.warehouseNumber("Nave 5 norte"); num != "5" {
		t.Errorf("warehouseNumber = %q, want 5", num)
	}
	if num := rules.warehouseNumber("Sombraculo 1"); num != "" {
		t.Errorf("warehouseNumber = %q, want empty", num)
	}
	if num := rules.areaNumber("Cantero somb 1"); num != "1" {
		t.Errorf("areaNumber = %q, want 1", num)
	}
	if num := rules.areaNumber("Cantero sombraculo 12"); num != "12" {
		t.Errorf("areaNumber = %q, want 12", num)
	}
}
