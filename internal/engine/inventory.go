package engine

import "time"

// readyCapFactor bounds ready inventory at a multiple of the item's capacity
const readyCapFactor = 6

// CookLot is a batch committed to the fryer that matures at ReadyAt
type CookLot struct {
	Units   int       `json:"units"`
	ReadyAt time.Time `json:"ready_at"`
}

// inventory simulates one item's ready units and in-flight cook lots.
// Lots are appended in ready-at order because cook time is constant.
type inventory struct {
	ready    float64
	lots     []CookLot
	last     time.Time
	started  bool
	promoted int
}

func newInventory(readyUnits int) *inventory {
	return &inventory{ready: float64(max(0, readyUnits))}
}

// advance promotes matured lots and consumes ready units for the time elapsed since
// the previous call. The first call only records now.
func (inv *inventory) advance(now time.Time, load, cadenceMin, unitsPerOrder float64, maxUnits int) {
	if !inv.started {
		inv.started = true
		inv.last = now
		return
	}

	n := 0
	for n < len(inv.lots) && !inv.lots[n].ReadyAt.After(now) {
		inv.ready += float64(inv.lots[n].Units)
		inv.promoted += inv.lots[n].Units
		n++
	}
	inv.lots = inv.lots[n:]

	elapsed := now.Sub(inv.last)
	if elapsed > 0 {
		inv.ready = max(0, inv.ready-demandRate(load, cadenceMin, unitsPerOrder)*elapsed.Minutes())
	}
	// a backwards step rebases consumption instead of stalling it
	inv.last = now
	inv.ready = min(inv.ready, float64(readyCapFactor*maxUnits))
}

// commit queues a new cook lot
func (inv *inventory) commit(units int, readyAt time.Time) {
	if units <= 0 {
		return
	}
	inv.lots = append(inv.lots, CookLot{Units: units, ReadyAt: readyAt})
}

// fryerUnits sums in-flight units. A zero cutoff counts every lot.
func (inv *inventory) fryerUnits(readyBefore time.Time) int {
	total := 0
	for _, lot := range inv.lots {
		if readyBefore.IsZero() || !lot.ReadyAt.After(readyBefore) {
			total += lot.Units
		}
	}
	return total
}

// pending returns a copy of the in-flight lots
func (inv *inventory) pending() []CookLot {
	out := make([]CookLot, len(inv.lots))
	copy(out, inv.lots)
	return out
}

// demandRate converts a customer load per drop cycle into units per minute
func demandRate(load, cadenceMin, unitsPerOrder float64) float64 {
	if cadenceMin <= 0 {
		return 0
	}
	return max(0, load) / cadenceMin * unitsPerOrder
}
