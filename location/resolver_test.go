package location_test

import (
	"context"
	"errors"
	"guardpost/location"
	"guardpost/models"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubGeocoder struct {
	addr  *location.Address
	err   error
	calls int
}

func (s *stubGeocoder) Reverse(context.Context, float64, float64) (*location.Address, error) {
	s.calls++
	return s.addr, s.err
}

type stubLocator struct {
	loc   *location.IPLocation
	err   error
	calls int
	ip    string
}

func (s *stubLocator) Locate(_ context.Context, ip string) (*location.IPLocation, error) {
	s.calls++
	s.ip = ip
	return s.loc, s.err
}

type blockingSource struct{}

func (blockingSource) CurrentPosition(ctx context.Context) (*location.Position, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var resolvedAt = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newResolver(t *testing.T, geo location.ReverseGeocoder, ip location.IPLocator, opts location.Options) *location.Resolver {
	t.Helper()
	r := location.NewResolver(geo, ip, opts, zaptest.NewLogger(t))
	r.SetClock(func() time.Time { return resolvedAt })
	return r
}

func TestResolve_DevicePositionWithAddress(t *testing.T) {
	geo := &stubGeocoder{addr: &location.Address{DisplayName: "1 Marina, Lagos, Nigeria", City: "Lagos", Country: "Nigeria"}}
	ip := &stubLocator{}
	r := newResolver(t, geo, ip, location.Options{})

	result := r.Resolve(context.Background(), location.Request{
		Device: location.Reported(&location.Position{Latitude: 6.45, Longitude: 3.39, Accuracy: 8}, ""),
		IP:     "203.0.113.7",
	})

	require.NotNil(t, result)
	assert.Equal(t, models.SourceGPS, result.Source)
	assert.Empty(t, result.Error)
	assert.Equal(t, 6.45, *result.Latitude)
	assert.Equal(t, 8.0, *result.Accuracy)
	assert.Equal(t, "Lagos", result.City)
	assert.Equal(t, "1 Marina, Lagos, Nigeria", result.Address)
	assert.Equal(t, resolvedAt, result.Timestamp)
	assert.Equal(t, 0, ip.calls)
}

func TestResolve_GeocoderFailureKeepsCoordinates(t *testing.T) {
	geo := &stubGeocoder{err: errors.New("service down")}
	r := newResolver(t, geo, nil, location.Options{})

	result := r.Resolve(context.Background(), location.Request{
		Device: location.Reported(&location.Position{Latitude: 1, Longitude: 2, Accuracy: 30}, ""),
	})

	assert.Equal(t, models.SourceGPS, result.Source)
	assert.True(t, result.HasCoordinates())
	assert.Empty(t, result.Address)
	assert.Equal(t, 1, geo.calls)
}

func TestResolve_PermissionDeniedFallsBackToIP(t *testing.T) {
	ip := &stubLocator{loc: &location.IPLocation{Latitude: 9.07, Longitude: 7.39, City: "Abuja", Region: "FCT", Country: "Nigeria"}}
	r := newResolver(t, &stubGeocoder{}, ip, location.Options{IPAccuracy: 25000})

	result := r.Resolve(context.Background(), location.Request{
		Device: location.Reported(nil, "permission_denied"),
		IP:     "203.0.113.7",
	})

	assert.Equal(t, models.SourceIP, result.Source)
	assert.Equal(t, 25000.0, *result.Accuracy)
	assert.Equal(t, "Abuja", result.City)
	assert.Equal(t, "Abuja, FCT, Nigeria", result.Address)
	assert.Equal(t, "203.0.113.7", ip.ip)
}

func TestResolve_AllSourcesFail(t *testing.T) {
	ip := &stubLocator{err: location.ErrNoPublicIP}
	r := newResolver(t, nil, ip, location.Options{})

	result := r.Resolve(context.Background(), location.Request{
		Device: location.Reported(nil, "permission_denied"),
		IP:     "10.0.0.1",
	})

	assert.Empty(t, result.Source)
	assert.False(t, result.HasCoordinates())
	assert.True(t, strings.HasPrefix(result.Error, "Unable to determine location ("))
	assert.Contains(t, result.Error, "permission denied")
	assert.Contains(t, result.Error, "no public client IP")
}

func TestResolve_NoDeviceAndNoLocator(t *testing.T) {
	r := newResolver(t, nil, nil, location.Options{})

	result := r.Resolve(context.Background(), location.Request{})

	assert.Contains(t, result.Error, "geolocation not supported")
	assert.Contains(t, result.Error, "ip lookup: not configured")
}

func TestResolve_RejectsStaleAndInvalidPositions(t *testing.T) {
	ip := &stubLocator{err: errors.New("offline")}
	r := newResolver(t, nil, ip, location.Options{MaxPositionAge: time.Minute})

	stale := r.Resolve(context.Background(), location.Request{
		Device: location.Reported(&location.Position{Latitude: 1, Longitude: 1, Timestamp: resolvedAt.Add(-2 * time.Minute)}, ""),
	})
	assert.Contains(t, stale.Error, location.ErrStalePosition.Error())

	invalid := r.Resolve(context.Background(), location.Request{
		Device: location.Reported(&location.Position{Latitude: 91, Longitude: 0}, ""),
	})
	assert.Contains(t, invalid.Error, location.ErrInvalidPosition.Error())
}

func TestResolve_DeviceTimeout(t *testing.T) {
	r := newResolver(t, nil, nil, location.Options{PositionTimeout: 10 * time.Millisecond})

	result := r.Resolve(context.Background(), location.Request{Device: blockingSource{}})

	assert.Contains(t, result.Error, "device position: timed out")
}

func TestReported(t *testing.T) {
	assert.Nil(t, location.Reported(nil, ""))

	_, err := location.Reported(nil, "permission_denied").CurrentPosition(context.Background())
	assert.ErrorIs(t, err, location.ErrPermissionDenied)

	_, err = location.Reported(nil, "unsupported").CurrentPosition(context.Background())
	assert.ErrorIs(t, err, location.ErrUnsupported)

	_, err = location.Reported(nil, "gps off").CurrentPosition(context.Background())
	assert.ErrorIs(t, err, location.ErrPositionUnavailable)
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, location.Normalize(nil, resolvedAt))

	withError := location.Normalize(&models.LocationResult{
		Source:   models.SourceGPS,
		Latitude: models.Float(1),
		Error:    "denied",
	}, resolvedAt)
	assert.Empty(t, withError.Source)
	assert.Nil(t, withError.Latitude)
	assert.Equal(t, resolvedAt, withError.Timestamp)

	unknown := location.Normalize(&models.LocationResult{Source: "satellite"}, resolvedAt)
	assert.Contains(t, unknown.Error, "unknown location source")

	outOfRange := location.Normalize(&models.LocationResult{
		Source:    models.SourceGPS,
		Latitude:  models.Float(120),
		Longitude: models.Float(0),
	}, resolvedAt)
	assert.Equal(t, location.ErrInvalidPosition.Error(), outOfRange.Error)

	manual := location.Normalize(&models.LocationResult{Source: models.SourceManual, Address: "Gate 3"}, resolvedAt)
	assert.Empty(t, manual.Error)
	assert.Equal(t, "Gate 3", manual.Address)
}
