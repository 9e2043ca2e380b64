package soy

import "math"

// fuelTracker bounds the work of one render. Every evaluated statement and
// expression costs one unit.
type fuelTracker struct {
	initial   int64
	remaining int64
}

func newFuelTracker(fuel uint64) *fuelTracker {
	if fuel > math.MaxInt64 {
		fuel = math.MaxInt64
	}
	return &fuelTracker{initial: int64(fuel), remaining: int64(fuel)}
}

func (f *fuelTracker) consume(amount int64) error {
	if f == nil || amount == 0 {
		return nil
	}
	f.remaining -= amount
	if f.remaining < 0 {
		return newError(ErrOutOfFuel, "render used more than %d units of fuel", f.initial)
	}
	return nil
}

// consumed reports how much fuel has been used so far.
func (f *fuelTracker) consumed() uint64 {
	if f == nil {
		return 0
	}
	if f.remaining <= 0 {
		return uint64(f.initial)
	}
	return uint64(f.initial - f.remaining)
}
