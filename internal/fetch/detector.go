package fetch

import (
	"net/http"
	"strings"
)

// mitigationHeaders are set by common bot-mitigation layers on challenge
// responses.
var mitigationHeaders = []string{
	"cf-mitigated",
	"cf-chl-bypass",
	"x-sucuri-block",
	"x-datadome",
	"x-amzn-waf-action",
}

// Mitigated reports whether a response looks like a bot-mitigation challenge
// rather than content.
func Mitigated(resp Response) bool {
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	for _, name := range mitigationHeaders {
		if resp.Headers.Get(name) != "" {
			return true
		}
	}
	return false
}

// shapeMismatch reports an HTML body where JSON was expected. Challenge
// interstitials routinely return 200 HTML on .json endpoints.
func shapeMismatch(jsonSeeking bool, resp Response) bool {
	if !jsonSeeking {
		return false
	}
	ct := strings.ToLower(resp.Headers.Get("Content-Type"))
	return strings.Contains(ct, "text/html")
}
