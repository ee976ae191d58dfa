// config-test loads the same configuration from YAML and SQLite and reports
// every setting on which they disagree.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/chrissnell/sdofresponse/pkg/config"
)

// difference is one setting that the two backends load differently.
type difference struct {
	Key          string
	YAML, SQLite string
}

func main() {
	yamlFile := flag.String("yaml", "", "Path to YAML configuration file")
	sqliteFile := flag.String("sqlite", "", "Path to SQLite configuration file")
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	yamlConfig, sqliteConfig, err := load(*yamlFile, *sqliteFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	diffs := compare(yamlConfig, sqliteConfig)
	report(os.Stdout, diffs)
	if len(diffs) > 0 {
		os.Exit(1)
	}
}

func load(yamlFile, sqliteFile string) (*config.ConfigData, *config.ConfigData, error) {
	yamlConfig, err := config.NewYAMLProvider(yamlFile).LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", yamlFile, err)
	}

	sqliteProvider, err := config.NewSQLiteProvider(sqliteFile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", sqliteFile, err)
	}
	defer sqliteProvider.Close()

	sqliteConfig, err := sqliteProvider.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", sqliteFile, err)
	}
	return yamlConfig, sqliteConfig, nil
}

// compare walks both configurations setting by setting. Keys are the YAML
// paths, e.g. analysis.spectrum_dt.
func compare(a, b *config.ConfigData) []difference {
	var diffs []difference
	walk("", reflect.ValueOf(*a), reflect.ValueOf(*b), &diffs)
	return diffs
}

func walk(prefix string, a, b reflect.Value, diffs *[]difference) {
	if a.Kind() == reflect.Pointer {
		switch {
		case a.IsNil() && b.IsNil():
			return
		case a.IsNil() || b.IsNil():
			*diffs = append(*diffs, difference{Key: prefix, YAML: present(a), SQLite: present(b)})
			return
		}
		a, b = a.Elem(), b.Elem()
	}

	if a.Kind() != reflect.Struct {
		if !reflect.DeepEqual(a.Interface(), b.Interface()) {
			*diffs = append(*diffs, difference{
				Key:    prefix,
				YAML:   fmt.Sprint(a.Interface()),
				SQLite: fmt.Sprint(b.Interface()),
			})
		}
		return
	}

	t := a.Type()
	for i := 0; i < t.NumField(); i++ {
		key := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if key == "" {
			key = strings.ToLower(t.Field(i).Name)
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		walk(key, a.Field(i), b.Field(i), diffs)
	}
}

func present(v reflect.Value) string {
	if v.IsNil() {
		return "(not set)"
	}
	return "(set)"
}

func report(w io.Writer, diffs []difference) {
	if len(diffs) == 0 {
		fmt.Fprintln(w, "✓ configurations are identical")
		return
	}
	for _, d := range diffs {
		fmt.Fprintf(w, "✗ %s\n    YAML:   %s\n    SQLite: %s\n", d.Key, d.YAML, d.SQLite)
	}
	fmt.Fprintf(w, "\n%d setting(s) differ\n", len(diffs))
}
