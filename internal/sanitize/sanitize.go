// Package sanitize filters HTML scraped from the upstream listing before it
// is served to clients. The upstream is an external site we do not control,
// so descriptions and instructions pass through an allow-list policy.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.UGCPolicy()

// HTML strips everything outside the UGC allow-list from s.
func HTML(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(policy.Sanitize(s))
}
