package groundmotion

import (
	"fmt"
	"math"

	"github.com/chrissnell/sdofresponse/internal/sdof"
	"gonum.org/v1/gonum/interp"
)

// gridTolerance absorbs floating-point noise when the record span is an
// exact multiple of the step, so the end point stays excluded.
const gridTolerance = 1e-9

// GridLen returns the number of points start, start+step, ... strictly below end.
func GridLen(start, end, step float64) int {
	x := (end - start) / step
	n := int(math.Ceil(x - gridTolerance*math.Max(1, math.Abs(x))))
	if n < 0 {
		return 0
	}
	return n
}

// Resample linearly interpolates r onto the uniform grid t0, t0+dt, ...
// covering [t0, tlast). The input record is not modified.
func Resample(r *Record, dt float64) (*Record, error) {
	if err := sdof.Positive("dt", dt); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	t0 := r.Time[0]
	n := GridLen(t0, r.Time[len(r.Time)-1], dt)
	if n < 2 {
		return nil, fmt.Errorf("%w: a %gs record holds %d steps of %gs", sdof.ErrTooFewSamples, r.Duration(), n, dt)
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(r.Time, r.Accel); err != nil {
		return nil, fmt.Errorf("could not fit record: %w", err)
	}

	out := &Record{
		Time:  make([]float64, n),
		Accel: make([]float64, n),
	}
	for i := range out.Time {
		t := t0 + float64(i)*dt
		out.Time[i] = t
		out.Accel[i] = pl.Predict(t)
	}
	return out, nil
}

// PadTail appends seconds of zero acceleration after the last sample at the
// record's own step, letting free vibration settle.
func PadTail(r *Record, seconds float64) (*Record, error) {
	if !(seconds >= 0) {
		return nil, sdof.Invalid("tail_seconds", seconds, "must not be negative")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	dt := r.Dt()
	extra := int(math.Round(seconds / dt))
	n := len(r.Time)
	out := &Record{
		Time:  make([]float64, n+extra),
		Accel: make([]float64, n+extra),
	}
	copy(out.Time, r.Time)
	copy(out.Accel, r.Accel)

	last := r.Time[n-1]
	for k := 1; k <= extra; k++ {
		out.Time[n+k-1] = last + float64(k)*dt
	}
	return out, nil
}
