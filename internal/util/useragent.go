package util

import (
	"strings"

	"github.com/mssola/useragent"
)

const (
	DeviceClassMobile  = "mobile"
	DeviceClassTablet  = "tablet"
	DeviceClassDesktop = "desktop"
	DeviceClassBot     = "bot"
	DeviceClassUnknown = "unknown"
)

// DeviceClass reduces a User-Agent header to a coarse device class and a
// browser label such as "Chrome on Android".
func DeviceClass(header string) (class string, browser string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return DeviceClassUnknown, ""
	}

	ua := useragent.New(header)
	name, _ := ua.Browser()
	browser = name
	if os := ua.OS(); os != "" && name != "" {
		browser = name + " on " + osFamily(os)
	}
	browser = SanitizeText(browser, 48)

	switch {
	case ua.Bot():
		return DeviceClassBot, browser
	case strings.Contains(ua.Platform(), "iPad") || strings.Contains(header, "Tablet"):
		return DeviceClassTablet, browser
	case ua.Mobile():
		return DeviceClassMobile, browser
	default:
		return DeviceClassDesktop, browser
	}
}

// osFamily drops version detail ("Android 14" -> "Android").
func osFamily(os string) string {
	switch {
	case strings.HasPrefix(os, "Android"):
		return "Android"
	case strings.Contains(os, "iPhone OS") || strings.HasPrefix(os, "CPU iPhone"):
		return "iOS"
	case strings.HasPrefix(os, "Windows"):
		return "Windows"
	case strings.Contains(os, "Mac OS X"):
		return "macOS"
	case strings.Contains(os, "Linux"):
		return "Linux"
	}
	if i := strings.IndexByte(os, ' '); i > 0 {
		return os[:i]
	}
	return os
}
