package location_test

import (
	"context"
	"encoding/json"
	"guardpost/location"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimGeocoder_Reverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "6.45", r.URL.Query().Get("lat"))
		assert.Equal(t, "3.39", r.URL.Query().Get("lon"))
		assert.Equal(t, "guardpost-test", r.Header.Get("User-Agent"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"display_name": "Marina, Lagos Island, Lagos, Nigeria",
			"address": map[string]string{
				"town":    "Lagos Island",
				"country": "Nigeria",
			},
		})
	}))
	defer srv.Close()

	g := location.NewNominatimGeocoder(srv.URL+"/", "guardpost-test", 100, time.Second)
	addr, err := g.Reverse(context.Background(), 6.45, 3.39)
	require.NoError(t, err)
	assert.Equal(t, "Marina, Lagos Island, Lagos, Nigeria", addr.DisplayName)
	assert.Equal(t, "Lagos Island", addr.City)
	assert.Equal(t, "Nigeria", addr.Country)
}

func TestNominatimGeocoder_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") == "0" {
			json.NewEncoder(w).Encode(map[string]string{"error": "Unable to geocode"})
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := location.NewNominatimGeocoder(srv.URL, "", 100, time.Second)

	_, err := g.Reverse(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to geocode")

	_, err = g.Reverse(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNominatimGeocoder_ThrottleRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"display_name": "x"})
	}))
	defer srv.Close()

	// One request per minute: the second call cannot get a token before its deadline.
	g := location.NewNominatimGeocoder(srv.URL, "", 1.0/60, time.Second)
	_, err := g.Reverse(context.Background(), 1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Reverse(ctx, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
