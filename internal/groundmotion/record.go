// Package groundmotion loads ground-acceleration records and prepares them
// for integration: unit conversion, uniform resampling and zero padding.
package groundmotion

import (
	"fmt"
	"math"

	"github.com/chrissnell/sdofresponse/internal/sdof"
	"gonum.org/v1/gonum/floats"
)

// Record is a ground-acceleration history. Time is in seconds and Accel in m/s².
type Record struct {
	Time  []float64 `json:"time"`
	Accel []float64 `json:"accel"`
}

// New copies time and accel into a validated record.
func New(time, accel []float64) (*Record, error) {
	r := &Record{
		Time:  append([]float64(nil), time...),
		Accel: append([]float64(nil), accel...),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// FromG builds a record from accelerations expressed in g.
func FromG(time, accelG []float64, gravity float64) (*Record, error) {
	if err := sdof.Positive("gravity", gravity); err != nil {
		return nil, err
	}
	accel := make([]float64, len(accelG))
	floats.ScaleTo(accel, gravity, accelG)
	return New(time, accel)
}

// Validate checks the record's shape and time ordering.
func (r *Record) Validate() error {
	if len(r.Time) != len(r.Accel) {
		return fmt.Errorf("%w: %d times, %d accelerations", sdof.ErrLengthMismatch, len(r.Time), len(r.Accel))
	}
	if len(r.Time) < 2 {
		return fmt.Errorf("%w: got %d", sdof.ErrTooFewSamples, len(r.Time))
	}
	for i, t := range r.Time {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return sdof.Invalid(fmt.Sprintf("time[%d]", i), t, "must be finite")
		}
		if a := r.Accel[i]; math.IsNaN(a) || math.IsInf(a, 0) {
			return sdof.Invalid(fmt.Sprintf("accel[%d]", i), a, "must be finite")
		}
		if i > 0 && !(t > r.Time[i-1]) {
			return fmt.Errorf("%w: time[%d] = %g follows %g", sdof.ErrNonMonotonicTime, i, t, r.Time[i-1])
		}
	}
	return nil
}

// Len returns the number of samples.
func (r *Record) Len() int {
	return len(r.Time)
}

// Dt returns the spacing of the first two samples.
func (r *Record) Dt() float64 {
	return r.Time[1] - r.Time[0]
}

// Duration returns the span from the first to the last sample.
func (r *Record) Duration() float64 {
	return r.Time[len(r.Time)-1] - r.Time[0]
}

// Stats summarizes a record.
type Stats struct {
	Samples   int     `json:"samples"`
	Duration  float64 `json:"duration"`
	Dt        float64 `json:"dt"`
	PeakAccel float64 `json:"peak_accel"`
	RMSAccel  float64 `json:"rms_accel"`
}

// Stats returns the sample count, duration, first step, peak and RMS acceleration.
func (r *Record) Stats() Stats {
	n := float64(len(r.Accel))
	return Stats{
		Samples:   len(r.Time),
		Duration:  r.Duration(),
		Dt:        r.Dt(),
		PeakAccel: sdof.PeakAbs(r.Accel),
		RMSAccel:  math.Sqrt(floats.Dot(r.Accel, r.Accel) / n),
	}
}

// Table returns column headers and columns for tabular output.
func (r *Record) Table() ([]string, [][]float64) {
	return []string{"time", "accel"}, [][]float64{r.Time, r.Accel}
}
