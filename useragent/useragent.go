// Package useragent normalizes a raw User-Agent string into the device
// descriptor stored on user records. Profiling happens once per session;
// callers cache the result.
package useragent

import (
	"strings"

	"portfolio-analytics/model"

	"github.com/rs/zerolog/log"
	"github.com/ua-parser/uap-go/uaparser"
)

// Profiler classifies clients from their User-Agent string.
type Profiler struct {
	parser *uaparser.Parser
}

// NewProfiler builds a profiler from the parser's embedded definitions.
func NewProfiler() *Profiler {
	return &Profiler{parser: uaparser.NewFromSaved()}
}

var tabletIndicators = []string{"iPad", "Tablet", "Kindle", "Surface"}

var mobileIndicators = []string{
	"iPhone", "Android", "BlackBerry", "Windows Phone", "Mobile", "Phone",
}

var mobileOSFamilies = []string{
	"iOS", "Android", "Windows Phone", "BlackBerry OS", "Firefox OS",
}

var desktopOSFamilies = []string{
	"Windows", "Mac OS X", "macOS", "Linux", "Ubuntu", "Chrome OS",
	"FreeBSD", "OpenBSD", "NetBSD",
}

// Detect parses the User-Agent and returns a normalized descriptor.
// Classification: an explicit device family from the parser decides the
// type; otherwise a present device model means mobile; otherwise
// desktop. An empty User-Agent is unknown. Detect never fails; parser
// oddities degrade to "unknown".
func (p *Profiler) Detect(userAgent string) model.DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return model.DeviceInfo{Type: "unknown", AppName: "unknown"}
	}

	client := p.parser.Parse(userAgent)

	info := model.DeviceInfo{
		Type:    p.classify(client, userAgent),
		AppName: orUnknown(client.UserAgent.Family),
		Metadata: map[string]string{
			"os":  orUnknown(client.Os.Family),
			"raw": userAgent,
		},
	}
	if dm := client.Device.Model; dm != "" && dm != "Other" {
		info.Metadata["deviceModel"] = dm
	}

	log.Debug().
		Str("device_type", info.Type).
		Str("app_name", info.AppName).
		Msg("Profiled user agent")

	return info
}

func (p *Profiler) classify(client *uaparser.Client, userAgent string) string {
	// An explicit device family from the parser decides the type when it
	// names a known handheld; families like "Mac" fall through to the
	// OS-based rules.
	family := client.Device.Family
	if family != "" && family != "Other" {
		if hasAny(family, tabletIndicators) {
			return "tablet"
		}
		if hasAny(family, mobileIndicators) {
			return "mobile"
		}
	}

	if isMobileOS(client.Os.Family) {
		if isTablet(client.Device.Family, client.Os.Family, userAgent) {
			return "tablet"
		}
		return "mobile"
	}

	if isDesktopOS(client.Os.Family) {
		return "desktop"
	}

	// No recognized OS but a concrete device model: almost certainly a
	// handheld the definitions have not caught up with.
	if dm := client.Device.Model; dm != "" && dm != "Other" {
		return "mobile"
	}

	return "desktop"
}

func isTablet(deviceFamily, osFamily, userAgent string) bool {
	for _, indicator := range tabletIndicators {
		if containsFold(deviceFamily, indicator) {
			return true
		}
	}
	// Android tablets typically omit "Mobile" from the User-Agent.
	if containsFold(osFamily, "Android") && !containsFold(userAgent, "Mobile") {
		return true
	}
	return false
}

func isMobileOS(osFamily string) bool {
	return hasAny(osFamily, mobileOSFamilies)
}

func isDesktopOS(osFamily string) bool {
	return hasAny(osFamily, desktopOSFamilies)
}

func hasAny(s string, indicators []string) bool {
	for _, indicator := range indicators {
		if containsFold(s, indicator) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func orUnknown(s string) string {
	if s == "" || s == "Other" {
		return "unknown"
	}
	return s
}
