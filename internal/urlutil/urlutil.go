// Package urlutil normalises URLs so cache keys and dedup comparisons stay
// stable across superficially different links.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams is the fixed deny-list removed by Normalize.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"msclkid":      {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// Normalize strips tracking query parameters and the fragment. Remaining
// query parameters keep their original relative order. On any parse failure
// the input is returned unchanged.
func Normalize(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return raw
	}

	clean := parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath()

	if parsed.RawQuery == "" {
		return clean
	}

	kept := make([]string, 0, 8)
	for _, pair := range strings.Split(parsed.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if _, tracked := trackingParams[key]; tracked {
			continue
		}
		kept = append(kept, pair)
	}
	if len(kept) > 0 {
		clean += "?" + strings.Join(kept, "&")
	}
	return clean
}

// ExtractDomain returns the host portion of the URL, or "" when unparsable.
func ExtractDomain(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// IsValid reports whether the string parses with both a scheme and a host.
func IsValid(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}

// FaviconURL returns a favicon URL for the link's domain via Google's s2
// favicon service, which serves a default icon when the domain has none.
func FaviconURL(raw string) string {
	domain := ExtractDomain(raw)
	if domain == "" {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=32", domain)
}

// ResolveReference resolves ref (possibly relative) against base. When
// either side fails to parse, ref is returned as-is.
func ResolveReference(base, ref string) string {
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
