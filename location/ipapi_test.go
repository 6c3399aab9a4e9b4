package location_test

import (
	"context"
	"guardpost/location"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPAPILocator_Locate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/203.0.113.7/json/":
			w.Write([]byte(`{"latitude": 9.0765, "longitude": 7.3986, "city": "Abuja", "region": "FCT", "country_name": "Nigeria"}`))
		case "/198.51.100.1/json/":
			w.Write([]byte(`{"error": true, "reason": "Reserved IP Address"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	l := location.NewIPAPILocator(srv.URL, "guardpost-test", time.Second)

	loc, err := l.Locate(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 9.0765, loc.Latitude)
	assert.Equal(t, 7.3986, loc.Longitude)
	assert.Equal(t, "Abuja", loc.City)
	assert.Equal(t, "Nigeria", loc.Country)

	_, err = l.Locate(context.Background(), "198.51.100.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Reserved IP Address")
}

func TestIPAPILocator_SkipsNonPublicAddresses(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	l := location.NewIPAPILocator(srv.URL, "", time.Second)
	for _, ip := range []string{"", "not-an-ip", "127.0.0.1", "10.1.2.3", "192.168.0.5", "::1", "fe80::1", "0.0.0.0"} {
		_, err := l.Locate(context.Background(), ip)
		assert.ErrorIs(t, err, location.ErrNoPublicIP, ip)
	}
	assert.Equal(t, 0, calls)
}
