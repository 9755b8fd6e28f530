package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/couchcryptid/farm-protest-map/internal/dataset"
	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	opts := options{weeks: 6, perWeek: 4, seed: 7}

	var a, b bytes.Buffer
	_, err := generate(&a, opts)
	require.NoError(t, err)
	_, err = generate(&b, opts)
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())

	var c bytes.Buffer
	opts.seed = 8
	_, err = generate(&c, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.String(), c.String())
}

func TestGenerate_LoadsAsDataset(t *testing.T) {
	var buf bytes.Buffer
	counts, err := generate(&buf, options{weeks: 5, perWeek: 3, seed: 42})
	require.NoError(t, err)

	table, report, err := dataset.Read(context.Background(), &buf, dataset.Options{})
	require.NoError(t, err)

	assert.Empty(t, report.MissingColumns)
	assert.Zero(t, report.Dropped)
	assert.Equal(t, 5, table.Steps())
	assert.Equal(t, counts[domain.AllProtests], table.Len())

	weeks := table.Weeks()
	assert.Equal(t, "2023-50", weeks[0].Label)
	assert.Equal(t, "2024-02", weeks[4].Label, "ISO weeks roll over the year")

	tableCounts := table.CategoryCounts()
	for _, key := range domain.ReasonKeys() {
		assert.Equal(t, counts[key], tableCounts[key], key)
	}
	for i := 1; i <= table.Steps(); i++ {
		subset, err := table.Filter(i, domain.AllProtests)
		require.NoError(t, err)
		assert.NotEmpty(t, subset, "week %d", i)
	}
}

func TestGenerate_MissingCoords(t *testing.T) {
	var buf bytes.Buffer
	counts, err := generate(&buf, options{weeks: 3, perWeek: 5, seed: 1, missingCoord: 1})
	require.NoError(t, err)

	_, report, err := dataset.Read(context.Background(), &buf, dataset.Options{})
	require.NoError(t, err)
	assert.Equal(t, counts[domain.AllProtests], report.Dropped)
}
