package tankmodel

import (
	"math"
	"testing"
)

const eps = 1e-9

func testParams() Params {
	return Params{Area: 120, DischargeCoeff: 1.2649, MaxHeight: 5}
}

func TestOutletFlowZeroWhenLevelNonPositive(t *testing.T) {
	m := NewModel(testParams())
	q := m.OutletFlow([]float64{0}, []float64{1.0, 0.5})
	if math.Abs(q) > eps {
		t.Errorf("OutletFlow at h=0 = %v, want 0", q)
	}
	q = m.OutletFlow([]float64{-0.5}, []float64{1.0, 0.5})
	if math.Abs(q) > eps {
		t.Errorf("OutletFlow at h<0 = %v, want 0", q)
	}
}

func TestOutletFlowZeroWhenValveClosed(t *testing.T) {
	m := NewModel(testParams())
	q := m.OutletFlow([]float64{2.5}, []float64{1.0, 0.0})
	if math.Abs(q) > eps {
		t.Errorf("OutletFlow at v=0 = %v, want 0", q)
	}
}

func TestDerivativeFiniteForPhysicalRange(t *testing.T) {
	m := NewModel(testParams())
	for h := 0.0; h <= 5.0; h += 0.5 {
		for v := 0.0; v <= 1.0; v += 0.25 {
			xd := m.Derivative(0, []float64{h}, []float64{1.0, v})
			if math.IsNaN(xd[0]) || math.IsInf(xd[0], 0) {
				t.Fatalf("Derivative(h=%v, v=%v) = %v, want finite", h, v, xd[0])
			}
		}
	}
}

func TestSteadyStateBalance(t *testing.T) {
	// At h=2.5, v=0.5, q_in=1.0: q_out = 1.2649*0.5*sqrt(2.5) ~= 1.0.
	m := NewModel(testParams())
	q := m.OutletFlow([]float64{2.5}, []float64{1.0, 0.5})
	if math.Abs(q-1.0) > 0.005 {
		t.Errorf("OutletFlow at steady state = %v, want ~1.0", q)
	}
	xd := m.Derivative(0, []float64{2.5}, []float64{1.0, 0.5})
	if math.Abs(xd[0]) > 0.005 {
		t.Errorf("Derivative at steady state = %v, want ~0", xd[0])
	}
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Params
		ok   bool
	}{
		{"valid", testParams(), true},
		{"zero area", Params{Area: 0, DischargeCoeff: 1, MaxHeight: 1}, false},
		{"negative kv", Params{Area: 1, DischargeCoeff: -1, MaxHeight: 1}, false},
		{"nan height", Params{Area: 1, DischargeCoeff: 1, MaxHeight: math.NaN()}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.p.Validate()
			if (err == nil) != c.ok {
				t.Errorf("Validate() err=%v, want ok=%v", err, c.ok)
			}
		})
	}
}
