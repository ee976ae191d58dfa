package spectrum

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Values is a spectral ordinate series. Periods without a valid result hold
// NaN, which JSON carries as null.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for i, x := range raw {
		if x == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *x
	}
	*v = out
	return nil
}
