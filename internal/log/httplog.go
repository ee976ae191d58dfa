package log

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// httpLogSize is the number of requests kept for /api/v1/logs/http.
const httpLogSize = 1000

var (
	httpLogBuffer     *LogBuffer
	httpLogBufferOnce sync.Once
)

// GetHTTPLogBuffer returns the HTTP log buffer instance, creating it if necessary
func GetHTTPLogBuffer() *LogBuffer {
	httpLogBufferOnce.Do(func() {
		httpLogBuffer = NewLogBuffer(httpLogSize)
	})
	return httpLogBuffer
}

// HTTPRequest describes one served request. Route is the matched path
// template, so runs of the same endpoint group together.
type HTTPRequest struct {
	Method     string
	Path       string
	Route      string
	Status     int
	Duration   time.Duration
	Size       int64
	RemoteAddr string
	UserAgent  string
}

// level grades a request by its status class.
func (r HTTPRequest) level() string {
	switch {
	case r.Status >= http.StatusInternalServerError:
		return "error"
	case r.Status >= http.StatusBadRequest:
		return "warn"
	}
	return "info"
}

// LogHTTPRequest adds r to the HTTP log buffer.
func LogHTTPRequest(r HTTPRequest) {
	fields := map[string]any{
		"method":      r.Method,
		"path":        r.Path,
		"status":      r.Status,
		"duration_ms": r.Duration.Milliseconds(),
		"size":        r.Size,
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.UserAgent,
	}
	if r.Route != "" {
		fields["route"] = r.Route
	}

	GetHTTPLogBuffer().AddEntry(LogEntry{
		Timestamp: time.Now(),
		Level:     r.level(),
		Message:   fmt.Sprintf("%s %s %d %v %d bytes", r.Method, r.Path, r.Status, r.Duration, r.Size),
		Fields:    fields,
	})
}
