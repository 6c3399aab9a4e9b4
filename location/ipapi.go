package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// IPAPILocator queries an ipapi.co-compatible service.
type IPAPILocator struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewIPAPILocator creates a locator for baseURL.
func NewIPAPILocator(baseURL, userAgent string, timeout time.Duration) *IPAPILocator {
	return &IPAPILocator{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

type ipapiResponse struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	CountryName string   `json:"country_name"`
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
}

// Locate implements IPLocator. Private and loopback addresses fail without a
// network call since no public service can place them.
func (l *IPAPILocator) Locate(ctx context.Context, ip string) (*IPLocation, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return nil, ErrNoPublicIP
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", l.baseURL, addr.String()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ip lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip lookup: unexpected status %d", resp.StatusCode)
	}

	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ip lookup: decode: %w", err)
	}
	if body.Error {
		return nil, fmt.Errorf("ip lookup: %s", body.Reason)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return nil, fmt.Errorf("ip lookup: no coordinates for %s", ip)
	}

	return &IPLocation{
		Latitude:  *body.Latitude,
		Longitude: *body.Longitude,
		City:      body.City,
		Region:    body.Region,
		Country:   body.CountryName,
	}, nil
}
