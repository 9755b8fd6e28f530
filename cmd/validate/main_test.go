package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, rows ...string) string {
	t.Helper()
	header := append([]string{"week_year", "lat", "lon", "notes_wrapped"}, domain.ReasonKeys()...)
	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteString("\n")
	pad := strings.Repeat(",0", len(domain.ReasonKeys()))
	for _, r := range rows {
		b.WriteString(r)
		b.WriteString(pad)
		b.WriteString("\n")
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestRun_Passes(t *testing.T) {
	path := writeDataset(t,
		"2023-50,48.8566,2.3522,Tractor convoy",
		"2023-51,52.5200,13.4050,Berlin rally",
		"2023-50,50.8503,4.3517,Brussels blockade",
	)

	var out bytes.Buffer
	code := run(path, false, &out)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "All validations passed.")
	assert.Contains(t, out.String(), "Rows: 3, records: 3, weeks: 2, dropped: 0")
	assert.Contains(t, out.String(), "All Protests")
}

func TestRun_DroppedRows(t *testing.T) {
	path := writeDataset(t,
		"2023-50,48.8566,2.3522,Tractor convoy",
		"2023-51,,,No coordinates",
	)

	var out bytes.Buffer
	assert.Equal(t, 1, run(path, false, &out))
	assert.Contains(t, out.String(), "1 of 2 rows dropped")

	out.Reset()
	assert.Equal(t, 0, run(path, true, &out), out.String())
}

func TestRun_OutsideEurope(t *testing.T) {
	path := writeDataset(t, "2023-50,40.7128,-74.0060,New York")

	var out bytes.Buffer
	assert.Equal(t, 1, run(path, false, &out))
	assert.Contains(t, out.String(), "outside Europe")
}

func TestRun_MissingFile(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, run(filepath.Join(t.TempDir(), "missing.csv"), false, &out))
	assert.Contains(t, out.String(), "FATAL")
}
