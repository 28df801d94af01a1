// Package probe decides whether the current device and context are allowed
// to run the secure capture workflow at all. It gates on a secure origin,
// the presence of a camera acquisition API, and a mobile-class device, since
// policy requires uploads to come from a handheld device actually on-site.
package probe

import (
	"net/url"
	"strings"
)

// Reasons a context is rejected. First failing rule wins.
const (
	ReasonInsecureOrigin  = "insecure-origin"
	ReasonAPIUnavailable  = "api-unavailable"
	ReasonNonMobileDevice = "non-mobile-device"
)

// Result reports whether camera capture is available, and why not when it
// is not.
type Result struct {
	Supported bool
	Reason    string
}

// CaptureAPI reports whether the runtime exposes a camera acquisition API.
// The camera package provides the real implementation; tests stub it.
type CaptureAPI interface {
	Available() bool
}

// Prober evaluates the capability rules for one runtime context.
type Prober struct {
	api CaptureAPI
}

// New creates a Prober over the given capture API.
func New(api CaptureAPI) *Prober {
	return &Prober{api: api}
}

// localDevHosts are origins treated as secure for development even without TLS.
var localDevHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"::1":       {},
}

// CheckCameraSupport evaluates the capability rules in order and returns the
// first failure. An unsupported result is fatal to the whole workflow; there
// is no retry path short of switching device or context.
func (p *Prober) CheckCameraSupport(origin, userAgent string) Result {
	if !isSecureOrigin(origin) {
		return Result{Supported: false, Reason: ReasonInsecureOrigin}
	}

	if p.api == nil || !p.api.Available() {
		return Result{Supported: false, Reason: ReasonAPIUnavailable}
	}

	if !IsLikelyMobile(userAgent) {
		return Result{Supported: false, Reason: ReasonNonMobileDevice}
	}

	return Result{Supported: true}
}

// isSecureOrigin accepts TLS origins and recognized local-development hosts.
func isSecureOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if u.Scheme == "https" {
		return true
	}

	host := u.Hostname()
	if _, ok := localDevHosts[host]; ok {
		return true
	}
	return strings.HasSuffix(host, ".local")
}

// mobileMarkers are user-agent substrings that identify handheld devices.
var mobileMarkers = []string{"mobile", "android", "iphone", "ipad", "tablet"}

// IsLikelyMobile reports whether the user agent looks like a handheld
// device. Desktop capture is disallowed by policy, so the workflow is only
// offered when this returns true.
func IsLikelyMobile(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
