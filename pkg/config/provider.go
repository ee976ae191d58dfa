package config

import (
	"time"

	"github.com/chrissnell/sdofresponse/internal/constants"
	"github.com/chrissnell/sdofresponse/internal/sdof"
	"go.uber.org/multierr"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetAnalysisConfig() (*AnalysisData, error)
	GetServerConfig() (*ServerData, error)
	GetArchiveConfig() (*ArchiveData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Analysis AnalysisData `json:"analysis" yaml:"analysis"`
	Server   ServerData   `json:"server" yaml:"server"`
	Archive  *ArchiveData `json:"archive,omitempty" yaml:"archive,omitempty"`
	Logging  LoggingData  `json:"logging" yaml:"logging"`
}

// AnalysisData holds working steps and spectrum limits
type AnalysisData struct {
	TimeHistoryDt float64 `json:"time_history_dt" yaml:"time_history_dt"`
	SpectrumDt    float64 `json:"spectrum_dt" yaml:"spectrum_dt"`
	InelasticDt   float64 `json:"inelastic_dt" yaml:"inelastic_dt"`
	TailSeconds   float64 `json:"tail_seconds" yaml:"tail_seconds"`
	PeriodStart   float64 `json:"period_start" yaml:"period_start"`
	PeriodEnd     float64 `json:"period_end" yaml:"period_end"`
	PeriodStep    float64 `json:"period_step" yaml:"period_step"`
	Workers       int     `json:"workers,omitempty" yaml:"workers,omitempty"`
	Gravity       float64 `json:"gravity" yaml:"gravity"`
}

// ServerData configures the REST and gRPC listeners, which share one port
type ServerData struct {
	ListenAddr     string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty"`
	Cert           string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key            string `json:"key,omitempty" yaml:"key,omitempty"`
	EnableCORS     bool   `json:"enable_cors,omitempty" yaml:"enable_cors,omitempty"`
	EnableGRPC     bool   `json:"enable_grpc,omitempty" yaml:"enable_grpc,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

// ArchiveData configures the PostgreSQL run archive
type ArchiveData struct {
	ConnectionString      string `json:"connection_string" yaml:"connection_string"`
	CreateDatabase        bool   `json:"create_database,omitempty" yaml:"create_database,omitempty"`
	AdminConnectionString string `json:"admin_connection_string,omitempty" yaml:"admin_connection_string,omitempty"`
}

// LoggingData configures the optional rotated log file
type LoggingData struct {
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
}

const (
	defaultPort           = 8080
	defaultRequestTimeout = "2m"
	defaultLogMaxSizeMB   = 100
)

// ApplyDefaults fills every unset field.
func (c *ConfigData) ApplyDefaults() {
	a := &c.Analysis
	setDefault(&a.TimeHistoryDt, constants.DefaultTimeHistoryDt)
	setDefault(&a.SpectrumDt, constants.DefaultSpectrumDt)
	setDefault(&a.InelasticDt, constants.DefaultInelasticDt)
	setDefault(&a.TailSeconds, constants.DefaultTailSeconds)
	setDefault(&a.PeriodStart, constants.DefaultPeriodStart)
	setDefault(&a.PeriodEnd, constants.DefaultPeriodEnd)
	setDefault(&a.PeriodStep, constants.DefaultPeriodStep)
	setDefault(&a.Gravity, constants.Gravity)

	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
}

func setDefault(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

// Validate reports every invalid setting.
func (c *ConfigData) Validate() error {
	var err error
	a := c.Analysis
	err = multierr.Append(err, sdof.Positive("analysis.time_history_dt", a.TimeHistoryDt))
	err = multierr.Append(err, sdof.Positive("analysis.spectrum_dt", a.SpectrumDt))
	err = multierr.Append(err, sdof.Positive("analysis.inelastic_dt", a.InelasticDt))
	err = multierr.Append(err, sdof.Positive("analysis.period_start", a.PeriodStart))
	err = multierr.Append(err, sdof.Positive("analysis.period_step", a.PeriodStep))
	err = multierr.Append(err, sdof.Positive("analysis.gravity", a.Gravity))
	if a.TailSeconds < 0 {
		err = multierr.Append(err, sdof.Invalid("analysis.tail_seconds", a.TailSeconds, "must not be negative"))
	}
	if !(a.PeriodEnd > a.PeriodStart) {
		err = multierr.Append(err, sdof.Invalid("analysis.period_end", a.PeriodEnd, "must exceed period_start"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, sdof.Invalid("server.port", float64(c.Server.Port), "must be a TCP port"))
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		err = multierr.Append(err, sdof.Invalid("server.cert", 0, "cert and key must be set together"))
	}
	if _, perr := time.ParseDuration(c.Server.RequestTimeout); perr != nil && c.Server.RequestTimeout != "" {
		err = multierr.Append(err, sdof.Invalid("server.request_timeout", 0, perr.Error()))
	}
	if c.Archive != nil && c.Archive.ConnectionString == "" {
		err = multierr.Append(err, sdof.Invalid("archive.connection_string", 0, "required when the archive is configured"))
	}
	return err
}

// Timeout returns the parsed request timeout, or zero if unset or invalid.
func (s ServerData) Timeout() time.Duration {
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil {
		return 0
	}
	return d
}
