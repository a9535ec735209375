package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveParis(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	place := r.Resolve(48.8566, 2.3522)
	require.NotNil(t, place)
	assert.Equal(t, "Paris", place.City)
	assert.Equal(t, "France", place.Country)
	assert.Less(t, place.DistanceKm, 1.0)
}

func TestResolveNearbySnapsToCity(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	// Versailles, ~17 km from central Paris.
	place := r.Resolve(48.8049, 2.1204)
	require.NotNil(t, place)
	assert.Equal(t, "Paris", place.City)
}

func TestResolveOpenOcean(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	// Mid South Pacific, nothing within the cutoff.
	assert.Nil(t, r.Resolve(-40.0, -120.0))
}

func TestResolveSouthernHemisphere(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	place := r.Resolve(-33.8688, 151.2093)
	require.NotNil(t, place)
	assert.Equal(t, "Sydney", place.City)
	assert.Equal(t, "Australia", place.Country)
}

func TestHaversineKnownDistance(t *testing.T) {
	// Paris to London is roughly 344 km.
	d := HaversineKm(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 344, d, 10)
}

func TestHaversineZero(t *testing.T) {
	assert.Zero(t, HaversineKm(10, 20, 10, 20))
}
