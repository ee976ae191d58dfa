// Package responseformat encodes API responses as JSON, MessagePack or CSV
// according to the request's format query parameter.
package responseformat

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/multierr"
)

// Tabular is implemented by results that can be written as CSV columns.
type Tabular interface {
	Table() (header []string, columns [][]float64)
}

// Formatter handles encoding and writing responses in JSON, MessagePack or CSV format
type Formatter struct {
	cors bool
}

// NewFormatter creates a new response formatter. cors adds a permissive
// Access-Control-Allow-Origin header to every response.
func NewFormatter(cors bool) *Formatter {
	return &Formatter{cors: cors}
}

// WriteResponse writes the response in the appropriate format based on the query parameter.
// JSON is the default. format=msgpack selects MessagePack and format=csv selects CSV
// for results that implement Tabular.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, data any, headers map[string]string) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	if f.cors {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	switch req.URL.Query().Get("format") {
	case "msgpack":
		return f.writeMsgPack(w, data)
	case "csv":
		if t, ok := data.(Tabular); ok {
			return f.writeCSV(w, t)
		}
	}

	// Default to JSON format (when no format parameter or any other value)
	return f.writeJSON(w, data)
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// WriteError writes err with the given status. Aggregated errors are listed
// individually in details.
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, err error) error {
	body := ErrorBody{Error: err.Error()}
	if errs := multierr.Errors(err); len(errs) > 1 {
		for _, e := range errs {
			body.Details = append(body.Details, e.Error())
		}
	}

	if f.cors {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	if req.URL.Query().Get("format") == "msgpack" {
		w.Header().Set("Content-Type", "application/x-msgpack")
		w.WriteHeader(status)
		return f.encodeMsgPack(w, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func (f *Formatter) writeJSON(w http.ResponseWriter, data any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(data)
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, data any) error {
	w.Header().Set("Content-Type", "application/x-msgpack")
	return f.encodeMsgPack(w, data)
}

func (f *Formatter) encodeMsgPack(w http.ResponseWriter, data any) error {
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}

func (f *Formatter) writeCSV(w http.ResponseWriter, t Tabular) error {
	w.Header().Set("Content-Type", "text/csv")
	return WriteCSV(w, t)
}

// WriteCSV writes t as CSV with a header row. NaN values and the missing
// tails of shorter columns are written as empty cells.
func WriteCSV(w io.Writer, t Tabular) error {
	header, cols := t.Table()

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	rows := 0
	for _, c := range cols {
		rows = max(rows, len(c))
	}
	record := make([]string, len(cols))
	for i := 0; i < rows; i++ {
		for j, c := range cols {
			record[j] = ""
			if i < len(c) && !math.IsNaN(c[i]) {
				record[j] = strconv.FormatFloat(c[i], 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("could not write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
