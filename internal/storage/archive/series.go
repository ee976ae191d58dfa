package archive

import (
	"fmt"

	"github.com/chrissnell/sdofresponse/internal/spectrum"
	"github.com/vmihailenco/msgpack/v5"
)

type tabular interface {
	Table() ([]string, [][]float64)
}

// Series is the column-oriented history of a run. Missing values are NaN.
type Series struct {
	Columns []string          `msgpack:"columns" json:"columns"`
	Data    []spectrum.Values `msgpack:"data" json:"data"`
}

func encodeSeries(t tabular) ([]byte, error) {
	columns, data := t.Table()
	s := &Series{Columns: columns, Data: make([]spectrum.Values, len(data))}
	for i, col := range data {
		s.Data[i] = col
	}
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("could not encode series: %w", err)
	}
	return b, nil
}

func decodeSeries(b []byte) (*Series, error) {
	var s Series
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("could not decode series: %w", err)
	}
	return &s, nil
}

// Column returns the named column, or nil.
func (s *Series) Column(name string) spectrum.Values {
	for i, c := range s.Columns {
		if c == name {
			return s.Data[i]
		}
	}
	return nil
}

// Table returns the series as CSV columns.
func (s *Series) Table() ([]string, [][]float64) {
	cols := make([][]float64, len(s.Data))
	for i, c := range s.Data {
		cols[i] = c
	}
	return s.Columns, cols
}
