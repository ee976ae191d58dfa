package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chrissnell/sdofresponse/pkg/config"
)

func testConfig() *config.ConfigData {
	c := &config.ConfigData{}
	c.ApplyDefaults()
	return c
}

func TestCompareIdentical(t *testing.T) {
	if diffs := compare(testConfig(), testConfig()); len(diffs) != 0 {
		t.Errorf("compare() = %+v, want no differences", diffs)
	}
}

func TestCompareReportsSettings(t *testing.T) {
	a, b := testConfig(), testConfig()
	b.Analysis.SpectrumDt = 0.002
	b.Server.EnableCORS = !a.Server.EnableCORS
	b.Archive = &config.ArchiveData{ConnectionString: "postgres://localhost/sdofruns"}

	diffs := compare(a, b)
	want := map[string]bool{
		"analysis.spectrum_dt": true,
		"server.enable_cors":   true,
		"archive":              true,
	}
	if len(diffs) != len(want) {
		t.Fatalf("compare() = %+v, want keys %v", diffs, want)
	}
	for _, d := range diffs {
		if !want[d.Key] {
			t.Errorf("unexpected difference %+v", d)
		}
	}

	var buf bytes.Buffer
	report(&buf, diffs)
	if !strings.Contains(buf.String(), "3 setting(s) differ") || !strings.Contains(buf.String(), "(not set)") {
		t.Errorf("report = %q", buf.String())
	}
}

func TestCompareArchiveFields(t *testing.T) {
	a, b := testConfig(), testConfig()
	a.Archive = &config.ArchiveData{ConnectionString: "postgres://a/sdofruns"}
	b.Archive = &config.ArchiveData{ConnectionString: "postgres://b/sdofruns"}

	diffs := compare(a, b)
	if len(diffs) != 1 || diffs[0].Key != "archive.connection_string" {
		t.Errorf("compare() = %+v", diffs)
	}
}
