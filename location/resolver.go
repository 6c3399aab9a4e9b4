package location

import (
	"context"
	"errors"
	"fmt"
	"guardpost/metrics"
	"guardpost/models"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrUnsupported         = errors.New("geolocation not supported")
	ErrStalePosition       = errors.New("cached position too old")
	ErrInvalidPosition     = errors.New("invalid coordinates")
	ErrNoPublicIP          = errors.New("no public client IP")
)

// Position is a device-reported fix.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionSource yields the acting device's position.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (*Position, error)
}

// Address is the human-readable result of a reverse lookup.
type Address struct {
	DisplayName string
	City        string
	Country     string
}

// ReverseGeocoder turns coordinates into an address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Address, error)
}

// IPLocation is a coarse network-derived location.
type IPLocation struct {
	Latitude  float64
	Longitude float64
	City      string
	Region    string
	Country   string
}

// IPLocator estimates a location from an IP address.
type IPLocator interface {
	Locate(ctx context.Context, ip string) (*IPLocation, error)
}

// Options configures the resolver. Zero values take the defaults below.
type Options struct {
	PositionTimeout time.Duration // 10s
	MaxPositionAge  time.Duration // 5m
	GeocodeTimeout  time.Duration // 5s
	IPTimeout       time.Duration // 5s
	IPAccuracy      float64       // 50000 m
}

func (o *Options) setDefaults() {
	if o.PositionTimeout <= 0 {
		o.PositionTimeout = 10 * time.Second
	}
	if o.MaxPositionAge <= 0 {
		o.MaxPositionAge = 5 * time.Minute
	}
	if o.GeocodeTimeout <= 0 {
		o.GeocodeTimeout = 5 * time.Second
	}
	if o.IPTimeout <= 0 {
		o.IPTimeout = 5 * time.Second
	}
	if o.IPAccuracy <= 0 {
		o.IPAccuracy = 50000
	}
}

// Resolver produces one LocationResult per request, trying the device
// position, then IP geolocation, then giving up with a diagnostic.
type Resolver struct {
	geocoder ReverseGeocoder
	locator  IPLocator
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewResolver creates a resolver. geocoder and locator may be nil, in which
// case the corresponding step is skipped.
func NewResolver(geocoder ReverseGeocoder, locator IPLocator, opts Options, logger *zap.Logger) *Resolver {
	opts.setDefaults()
	return &Resolver{
		geocoder: geocoder,
		locator:  locator,
		opts:     opts,
		logger:   logger.With(zap.String("component", "location")),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Request carries the inputs for one resolution.
type Request struct {
	Device PositionSource // nil means the device reported nothing
	IP     string
}

// Resolve never fails: every error degrades to the next source and finally
// to a result carrying Error.
func (r *Resolver) Resolve(ctx context.Context, req Request) *models.LocationResult {
	started := r.now()
	var failures []string

	if req.Device == nil {
		failures = append(failures, "device position: "+ErrUnsupported.Error())
	} else {
		pos, err := r.devicePosition(ctx, req.Device)
		if err == nil {
			result := &models.LocationResult{
				Source:    models.SourceGPS,
				Latitude:  models.Float(pos.Latitude),
				Longitude: models.Float(pos.Longitude),
				Accuracy:  models.Float(pos.Accuracy),
				Timestamp: started,
			}
			r.enrich(ctx, result)
			metrics.LocationResolutionsTotal.WithLabelValues(string(models.SourceGPS)).Inc()
			return result
		}
		failures = append(failures, "device position: "+err.Error())
	}

	if r.locator == nil {
		failures = append(failures, "ip lookup: not configured")
	} else {
		loc, err := r.ipLocation(ctx, req.IP)
		if err == nil {
			metrics.LocationResolutionsTotal.WithLabelValues(string(models.SourceIP)).Inc()
			return &models.LocationResult{
				Source:    models.SourceIP,
				Latitude:  models.Float(loc.Latitude),
				Longitude: models.Float(loc.Longitude),
				Accuracy:  models.Float(r.opts.IPAccuracy),
				City:      loc.City,
				Country:   loc.Country,
				Address:   joinNonEmpty(", ", loc.City, loc.Region, loc.Country),
				Timestamp: started,
			}
		}
		failures = append(failures, "ip lookup: "+err.Error())
	}

	r.logger.Debug("location resolution failed", zap.Strings("failures", failures))
	metrics.LocationResolutionsTotal.WithLabelValues("none").Inc()
	return &models.LocationResult{
		Error:     "Unable to determine location (" + strings.Join(failures, "; ") + ")",
		Timestamp: started,
	}
}

func (r *Resolver) devicePosition(ctx context.Context, src PositionSource) (*Position, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.PositionTimeout)
	defer cancel()

	pos, err := src.CurrentPosition(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.New("timed out")
		}
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionUnavailable
	}
	if !validCoordinates(pos.Latitude, pos.Longitude) {
		return nil, ErrInvalidPosition
	}
	if !pos.Timestamp.IsZero() && r.now().Sub(pos.Timestamp) > r.opts.MaxPositionAge {
		return nil, ErrStalePosition
	}
	return pos, nil
}

// enrich adds address fields; a failed lookup leaves the coordinates intact.
func (r *Resolver) enrich(ctx context.Context, result *models.LocationResult) {
	if r.geocoder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.GeocodeTimeout)
	defer cancel()

	addr, err := r.geocoder.Reverse(ctx, *result.Latitude, *result.Longitude)
	if err != nil {
		r.logger.Debug("reverse geocoding failed", zap.Error(err))
		return
	}
	result.Address = addr.DisplayName
	result.City = addr.City
	result.Country = addr.Country
}

func (r *Resolver) ipLocation(ctx context.Context, ip string) (*IPLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.IPTimeout)
	defer cancel()

	loc, err := r.locator.Locate(ctx, ip)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.New("timed out")
		}
		return nil, err
	}
	if !validCoordinates(loc.Latitude, loc.Longitude) {
		return nil, ErrInvalidPosition
	}
	return loc, nil
}

// Reported adapts what the client sent into a PositionSource. A nil position
// with an empty reason means the device reported nothing at all.
func Reported(pos *Position, reason string) PositionSource {
	if pos == nil && reason == "" {
		return nil
	}
	return reportedPosition{pos: pos, reason: reason}
}

type reportedPosition struct {
	pos    *Position
	reason string
}

func (p reportedPosition) CurrentPosition(context.Context) (*Position, error) {
	if p.pos != nil {
		return p.pos, nil
	}
	switch strings.ToLower(p.reason) {
	case "permission_denied", "permission denied", "denied":
		return nil, ErrPermissionDenied
	case "unsupported", "not_supported":
		return nil, ErrUnsupported
	case "timeout":
		return nil, errors.New("timed out")
	}
	return nil, fmt.Errorf("%w: %s", ErrPositionUnavailable, p.reason)
}

// Normalize validates a client-resolved result so the stored value always
// satisfies the LocationResult invariant.
func Normalize(in *models.LocationResult, now time.Time) *models.LocationResult {
	if in == nil {
		return nil
	}
	out := in.Clone()
	if out.Timestamp.IsZero() {
		out.Timestamp = now
	}
	if out.Error != "" {
		out.Source = ""
		out.Latitude, out.Longitude, out.Accuracy = nil, nil, nil
		return out
	}
	if !out.Source.Valid() {
		return &models.LocationResult{Error: fmt.Sprintf("unknown location source %q", in.Source), Timestamp: out.Timestamp}
	}
	if out.HasCoordinates() && !validCoordinates(*out.Latitude, *out.Longitude) {
		return &models.LocationResult{Error: ErrInvalidPosition.Error(), Timestamp: out.Timestamp}
	}
	if (out.Latitude == nil) != (out.Longitude == nil) {
		out.Latitude, out.Longitude = nil, nil
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
