package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchcore/internal/dispatch"
)

func TestHTTPMapProviderDistanceParsesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"distanceKm": 12.5}`))
	}))
	defer srv.Close()

	p := NewHTTPMapProvider(srv.URL, "test-key")
	km, err := p.Distance(context.Background(),
		dispatch.Coordinate{Latitude: 12.9716, Longitude: 77.5946},
		dispatch.Coordinate{Latitude: 12.9352, Longitude: 77.6245})
	require.NoError(t, err)
	assert.Equal(t, 12.5, km)
}

func TestHTTPMapProviderDistancePropagatesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPMapProvider(srv.URL, "test-key")
	_, err := p.Distance(context.Background(),
		dispatch.Coordinate{Latitude: 12.9716, Longitude: 77.5946},
		dispatch.Coordinate{Latitude: 12.9352, Longitude: 77.6245})
	assert.Error(t, err)
}
