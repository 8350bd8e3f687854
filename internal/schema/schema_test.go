package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	catalog, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "measurements", catalog.Table)
	require.NotEmpty(t, catalog.Columns)
	require.NotEmpty(t, catalog.ExampleQueries)

	names := map[string]bool{}
	for _, c := range catalog.Columns {
		names[c.Name] = true
		assert.NotEmpty(t, c.Type, "column %s has a type", c.Name)
	}
	for _, col := range []string{"organization_id", "device_id", "metric", "recorded_at", "value", "tags"} {
		assert.True(t, names[col], "catalog describes %s", col)
	}

	for _, eq := range catalog.ExampleQueries {
		assert.Contains(t, eq.Query, "organization_id",
			"example %q must expose the tenant column", eq.Name)
	}
}

func TestLoadReturnsSameInstance(t *testing.T) {
	a, err := Load()
	require.NoError(t, err)
	b, err := Load()
	require.NoError(t, err)
	assert.Same(t, a, b)
}
