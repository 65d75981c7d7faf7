package engine

import (
	"fmt"
	"strings"
)

// Rationale holds the already-computed values behind one item's recommendation
type Rationale struct {
	Due          bool
	Fallback     bool
	Capped       bool
	Units        int
	MaxUnits     int
	Ready        int
	Fryer        int
	WindowDemand float64
	WindowMin    float64
	IntervalSec  int
	RemainingSec int
	UnitLabel    string
}

// String renders the operator-facing explanation
func (r Rationale) String() string {
	var b strings.Builder
	if r.Fallback {
		b.WriteString("Live stream unavailable; planning from the raw customer count. ")
	}

	stock := fmt.Sprintf("Ready %s, in fryer %s", qty(r.Ready, r.UnitLabel), qty(r.Fryer, r.UnitLabel))
	switch {
	case !r.Due:
		fmt.Fprintf(&b, "Holding the %ds decision; next refresh in %ds. %s.", r.IntervalSec, r.RemainingSec, stock)
	case r.Units > 0:
		fmt.Fprintf(&b, "%s. Forecast %s over the next %.1f min; drop %s now.",
			stock, qtyf(r.WindowDemand, r.UnitLabel), r.WindowMin, qty(r.Units, r.UnitLabel))
	default:
		fmt.Fprintf(&b, "%s. No drop needed for %s forecast over the next %.1f min.",
			stock, qtyf(r.WindowDemand, r.UnitLabel), r.WindowMin)
	}

	if r.Due && r.Capped {
		fmt.Fprintf(&b, " Capped at %s by the configured max unit size.", qty(r.MaxUnits, r.UnitLabel))
	}
	return b.String()
}

func qty(v int, label string) string {
	return fmt.Sprintf("%d %s", v, label)
}

func qtyf(v float64, label string) string {
	return fmt.Sprintf("%.1f %s", v, label)
}
