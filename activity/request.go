package activity

import (
	"guardpost/models"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/user_agent"
)

// Device types derived from the user agent.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// RequestMetaFrom derives device type, client IP and user agent from r.
func RequestMetaFrom(r *http.Request) models.RequestMeta {
	ua := r.UserAgent()
	return models.RequestMeta{
		DeviceType: DeviceType(ua),
		IPAddress:  ClientIP(r),
		UserAgent:  ua,
	}
}

// DeviceType classifies a user agent string.
func DeviceType(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return DeviceUnknown
	}
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") {
		return DeviceTablet
	}
	parsed := user_agent.New(ua)
	switch {
	case parsed.Bot():
		return DeviceBot
	case parsed.Mobile():
		return DeviceMobile
	}
	return DeviceDesktop
}

// ClientIP returns the host part of the connection's remote address.
// Forwarding headers are applied upstream, by middleware that only honours
// them from trusted proxies.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
