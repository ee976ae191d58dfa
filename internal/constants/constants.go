// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// Gravity converts accelerations recorded in g to m/s².
const Gravity = 9.81

// Analysis defaults. Records are resampled onto the finer grid for single
// time histories and onto the coarser one for spectra and inelastic runs.
const (
	DefaultTimeHistoryDt = 0.0001
	DefaultSpectrumDt    = 0.001
	DefaultInelasticDt   = 0.001
	DefaultTailSeconds   = 20.0

	DefaultPeriodStart = 0.01
	DefaultPeriodEnd   = 3.0
	DefaultPeriodStep  = 0.01
)
