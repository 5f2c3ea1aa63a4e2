package internal

import "strings"

// DeviceClass is the coarse device family detected from a User-Agent.
type DeviceClass uint8

const (
	DeviceClassUnknown DeviceClass = iota
	DeviceClassDesktop
	DeviceClassMobile
	DeviceClassTablet
	DeviceClassBot
)

type uaRule struct {
	token string
	name  string
}

// Order matters: the first matching token names the platform.
var platformRules = []uaRule{
	{token: "iphone", name: "iPhone"},
	{token: "ipad", name: "iPad"},
	{token: "android", name: "Android"},
	{token: "windows", name: "Windows"},
	{token: "mac os x", name: "macOS"},
	{token: "cros", name: "ChromeOS"},
	{token: "linux", name: "Linux"},
}

var browserRules = []uaRule{
	{token: "edg/", name: "Edge"},
	{token: "opr/", name: "Opera"},
	{token: "firefox/", name: "Firefox"},
	{token: "chrome/", name: "Chrome"},
	{token: "crios/", name: "Chrome"},
	{token: "safari/", name: "Safari"},
}

var botTokens = []string{"bot", "crawler", "spider", "curl/", "wget/", "python-requests"}

// ClassifyUserAgent returns a display name such as "Firefox on Linux" and
// a device class. An empty User-Agent yields ("", DeviceClassUnknown).
func ClassifyUserAgent(userAgent string) (string, DeviceClass) {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return "", DeviceClassUnknown
	}

	for _, tok := range botTokens {
		if strings.Contains(ua, tok) {
			return "Automated client", DeviceClassBot
		}
	}

	platform := firstMatch(platformRules, ua)
	browser := firstMatch(browserRules, ua)

	class := DeviceClassDesktop
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		class = DeviceClassTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		class = DeviceClassTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone"):
		class = DeviceClassMobile
	case platform == "":
		class = DeviceClassUnknown
	}

	switch {
	case browser != "" && platform != "":
		return browser + " on " + platform, class
	case platform != "":
		return platform, class
	default:
		return browser, class
	}
}

func firstMatch(rules []uaRule, ua string) string {
	for _, r := range rules {
		if strings.Contains(ua, r.token) {
			return r.name
		}
	}
	return ""
}
