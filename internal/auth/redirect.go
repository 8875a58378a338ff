package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// SafeRedirect returns target as a local path when it points at the host
// serving r, and "/" otherwise. The query string is kept.
func SafeRedirect(r *http.Request, target string) string {
	target = strings.TrimSpace(target)
	if target == "" || strings.HasPrefix(target, `/\`) || strings.Contains(target, `\`) {
		return "/"
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	base := &url.URL{Scheme: scheme, Host: r.Host, Path: "/"}

	ref, err := url.Parse(target)
	if err != nil {
		return "/"
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "/"
	}
	if !strings.EqualFold(resolved.Host, r.Host) || resolved.User != nil {
		return "/"
	}

	path := resolved.EscapedPath()
	if path == "" {
		path = "/"
	}
	if resolved.RawQuery != "" {
		path += "?" + resolved.RawQuery
	}
	return path
}
