package dataset

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGeocoder struct {
	result domain.GeocodingResult
	err    error
	calls  []string
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, name, country string) (domain.GeocodingResult, error) {
	m.calls = append(m.calls, name+"|"+country)
	return m.result, m.err
}

func TestLoad_Sample(t *testing.T) {
	table, report, err := Load(context.Background(), "testdata/sample.csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Rows)
	assert.Equal(t, 5, report.Records)
	assert.Equal(t, 3, report.Weeks)
	assert.Zero(t, report.Dropped)
	assert.Len(t, report.MissingColumns, len(domain.ReasonKeys())-3)

	assert.Equal(t, []domain.Week{
		{Index: 1, Label: "2023-50"},
		{Index: 2, Label: "2023-51"},
		{Index: 3, Label: "2024-01"},
	}, table.Weeks())

	records := table.Records()
	assert.Equal(t, 1, records[0].TimeIndex)
	assert.Equal(t, "Tractor convoy<br>on the ring road", records[0].Note)
	assert.Equal(t, domain.Geo{Lat: 48.8566, Lon: 2.3522}, records[0].Geo)
	assert.Equal(t, 2, records[4].TimeIndex, "rows revisiting a week reuse its index")

	for _, r := range records {
		assert.True(t, r.Flagged(domain.AllProtests))
	}
	assert.True(t, records[2].Flagged("Subsidy_Cuts"), "1.0 counts as set")
	assert.True(t, records[4].Flagged("Rising_Production_Costs"), "true counts as set")
	assert.False(t, records[3].Flagged("Subsidy_Cuts"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(context.Background(), "testdata/missing.csv", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open dataset")
}

func TestRead_MissingRequiredColumn(t *testing.T) {
	_, _, err := Read(context.Background(), strings.NewReader("week_year,lat\n2024-01,1\n"), Options{})
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "lon")
}

func TestRead_EmptyFile(t *testing.T) {
	_, _, err := Read(context.Background(), strings.NewReader(""), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty file")
}

func TestRead_HeaderOnly(t *testing.T) {
	table, report, err := Read(context.Background(), strings.NewReader("week_year,lat,lon\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Steps())
	assert.Equal(t, 0, report.Records)
}

func TestRead_ByteOrderMarkAndNotesFallback(t *testing.T) {
	csv := "\ufeffweek_year,lat,lon,notes\n2024-02,1.5,2.5,plain note\n"
	table, _, err := Read(context.Background(), strings.NewReader(csv), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "plain note", table.Records()[0].Note)
}

func TestRead_DropsRowsWithoutCoordinates(t *testing.T) {
	csv := strings.Join([]string{
		"week_year,lat,lon,location,country",
		"2024-01,,,Rennes,France",
		"2024-02,48.1,-1.6,Rennes,France",
		"2024-03,95,2,Nowhere,",
		"2024-04,NaN,2,,",
		",48,2,,",
	}, "\n")

	table, report, err := Read(context.Background(), strings.NewReader(csv), Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Rows)
	assert.Equal(t, 1, report.Records)
	assert.Equal(t, 4, report.Dropped)
	assert.Equal(t, 4, table.Steps(), "weeks of dropped rows stay on the slider")

	got, err := table.Filter(2, domain.AllProtests)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = table.Filter(1, domain.AllProtests)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRead_GeocodesRowsWithoutCoordinates(t *testing.T) {
	geo := &mockGeocoder{result: domain.GeocodingResult{Lat: 48.11, Lon: -1.68, FormattedAddress: "Rennes, France"}}
	csv := "week_year,lat,lon,location,country\n2024-01,,,Rennes,France\n2024-01,50,4,Brussels,Belgium\n"

	table, report, err := Read(context.Background(), strings.NewReader(csv), Options{Geocoder: geo})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Geocoded)
	assert.Zero(t, report.Dropped)
	assert.Equal(t, []string{"Rennes|France"}, geo.calls, "rows with coordinates are not geocoded")
	assert.Equal(t, domain.Geo{Lat: 48.11, Lon: -1.68}, table.Records()[0].Geo)
}

func TestRead_GeocodeFailureDropsRow(t *testing.T) {
	cases := []struct {
		name string
		geo  *mockGeocoder
	}{
		{"error", &mockGeocoder{err: errors.New("timeout")}},
		{"no match", &mockGeocoder{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			csv := "week_year,lat,lon,location,country\n2024-01,,,Atlantis,\n"
			table, report, err := Read(context.Background(), strings.NewReader(csv), Options{Geocoder: tc.geo})
			require.NoError(t, err)
			assert.Equal(t, 1, report.Dropped)
			assert.Equal(t, 0, table.Len())
			assert.Len(t, tc.geo.calls, 1)
		})
	}
}

func TestRead_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Read(ctx, strings.NewReader("week_year,lat,lon\n2024-01,1,1\n"), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRead_RaggedRow(t *testing.T) {
	_, _, err := Read(context.Background(), strings.NewReader("week_year,lat,lon\n2024-01,1\n"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read row 1")
}

func TestParseFlag(t *testing.T) {
	for _, s := range []string{"1", "1.0", "true", "TRUE", "yes"} {
		assert.True(t, parseFlag(s), s)
	}
	for _, s := range []string{"", "0", "0.0", "false", "2"} {
		assert.False(t, parseFlag(s), s)
	}
}
