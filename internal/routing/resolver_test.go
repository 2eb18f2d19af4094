package routing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() Table {
	return Table{
		ProjectID:     "syntheticpersonas",
		ProjectNumber: "541997184461",
		Region:        "us-central1",
		Endpoints: map[string]string{
			"Security_Seeker":    "6954726605520371712",
			"Pragmatic_Guardian": "4205454954871128065",
		},
	}
}

func TestResolveMappedCluster(t *testing.T) {
	r := NewResolver(testTable())

	ep, err := r.Resolve("Security_Seeker")
	require.NoError(t, err)
	assert.Equal(t, "Security_Seeker", ep.Cluster)
	assert.Equal(t, "6954726605520371712", ep.ID)
	assert.Equal(t, "projects/541997184461/locations/us-central1/endpoints/6954726605520371712", ep.Path)
}

func TestResolveUnmappedCluster(t *testing.T) {
	r := NewResolver(testTable())

	_, err := r.Resolve("Unknown_Tag")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEndpointUnmapped))
	assert.Contains(t, err.Error(), `"Unknown_Tag"`)

	var unmapped *UnmappedClusterError
	require.ErrorAs(t, err, &unmapped)
	assert.Equal(t, "Unknown_Tag", unmapped.Cluster)
}

func TestResolveIsCaseSensitive(t *testing.T) {
	r := NewResolver(testTable())

	_, err := r.Resolve("security_seeker")
	assert.ErrorIs(t, err, ErrEndpointUnmapped)
}

func TestResolveFallsBackToProjectID(t *testing.T) {
	table := testTable()
	table.ProjectNumber = ""
	r := NewResolver(table)

	ep, err := r.Resolve("Pragmatic_Guardian")
	require.NoError(t, err)
	assert.Equal(t, "projects/syntheticpersonas/locations/us-central1/endpoints/4205454954871128065", ep.Path)
}

func TestResolverCopiesTable(t *testing.T) {
	table := testTable()
	r := NewResolver(table)
	table.Endpoints["Unknown_Tag"] = "1"

	_, err := r.Resolve("Unknown_Tag")
	assert.ErrorIs(t, err, ErrEndpointUnmapped)
	assert.Equal(t, 2, r.Clusters())
}
