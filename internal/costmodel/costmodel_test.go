package costmodel

import (
	"testing"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/internal/provider"
)

func TestMonthlyCostScalesWithSize(t *testing.T) {
	m := NewDefault()
	oneGB := m.MonthlyCost(provider.AWS, model.TierHot, bytesPerGB)
	twoGB := m.MonthlyCost(provider.AWS, model.TierHot, 2*bytesPerGB)
	if twoGB <= oneGB {
		t.Errorf("cost for 2GB (%v) should exceed cost for 1GB (%v)", twoGB, oneGB)
	}
	if twoGB != 2*oneGB {
		t.Errorf("cost should scale linearly: 1GB=%v, 2GB=%v", oneGB, twoGB)
	}
}

func TestMonthlyCostColderIsCheaper(t *testing.T) {
	m := NewDefault()
	for _, p := range []provider.Name{provider.AWS, provider.Azure, provider.GCP} {
		hot := m.MonthlyCost(p, model.TierHot, 100*bytesPerGB)
		archive := m.MonthlyCost(p, model.TierArchive, 100*bytesPerGB)
		if archive >= hot {
			t.Errorf("%s: archive cost (%v) should be less than hot cost (%v)", p, archive, hot)
		}
	}
}

func TestMonthlySavingsNeverNegative(t *testing.T) {
	m := NewDefault()
	savings := m.MonthlySavings(provider.AWS, model.TierArchive, model.TierHot, 100*bytesPerGB)
	if savings != 0 {
		t.Errorf("moving to a hotter tier must report 0 savings, got %v", savings)
	}
}

func TestMonthlySavingsPositiveForColderMove(t *testing.T) {
	m := NewDefault()
	savings := m.MonthlySavings(provider.AWS, model.TierHot, model.TierArchive, 20*bytesPerGB)
	if savings <= 0 {
		t.Errorf("moving to a colder tier should report positive savings, got %v", savings)
	}
}

func TestUnitPriceUnknownProviderFallsBackToAWSStandard(t *testing.T) {
	m := NewDefault()
	price := m.UnitPrice(provider.Name("unknown-cloud"), model.TierHot)
	if price != 0.023 {
		t.Errorf("UnitPrice(unknown, HOT) = %v, want the 0.023 fallback", price)
	}
}
