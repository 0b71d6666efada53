package engagement

import (
	"net/url"
	"regexp"
	"strings"
)

// ContentReference is a content pointer exactly as a human supplied it: a
// URL, a short hash or a full hash. It is untrusted and may be malformed.
type ContentReference string

// String returns the raw reference.
func (r ContentReference) String() string { return string(r) }

// ContentID is the canonical identifier of one piece of remote content. It is
// always lower-case hex with a 0x prefix, in either the short or the full
// 64 digit form.
type ContentID string

// String returns the identifier.
func (id ContentID) String() string { return string(id) }

// IsFull reports whether id is the full 64 digit form.
func (id ContentID) IsFull() bool { return len(id) == len(hashPrefix)+FullHashDigits }

const (
	hashPrefix = "0x"

	// FullHashDigits is the number of hex digits in a full content hash.
	FullHashDigits = 64

	// MinShortHashDigits and MaxShortHashDigits bound the short form that
	// client URLs carry.
	MinShortHashDigits = 6
	MaxShortHashDigits = 40
)

var (
	// hexRun matches maximal runs of hex digits, optionally 0x prefixed. A
	// full hash is a run of exactly 64 digits so longer blobs are not cut.
	hexRun = regexp.MustCompile(`(?i)(?:0x)?[0-9a-f]+`)

	hashToken = regexp.MustCompile(`(?i)^0x[0-9a-f]+$`)
)

// Normalize turns raw into a ContentID without touching the network. The
// second return value is true when raw cannot be canonicalized locally and
// must be handed to a Resolver.
//
// A full 64 digit hash found anywhere in raw wins. Otherwise a standalone
// 0x token of a recognized length is accepted as is. Everything else, URLs
// and free text included, needs resolution.
func Normalize(raw ContentReference) (ContentID, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "", true
	}

	if id, ok := extractFullHash(s); ok {
		return id, false
	}

	if IsHashToken(s) {
		digits := len(s) - len(hashPrefix)
		if digits >= MinShortHashDigits && digits <= MaxShortHashDigits {
			return ContentID(strings.ToLower(s)), false
		}
	}

	return "", true
}

func extractFullHash(s string) (ContentID, bool) {
	for _, m := range hexRun.FindAllString(s, -1) {
		digits := strings.TrimPrefix(strings.TrimPrefix(m, "0x"), "0X")
		if len(digits) == FullHashDigits {
			return ContentID(hashPrefix + strings.ToLower(digits)), true
		}
	}
	return "", false
}

// IsHashToken reports whether s looks like a bare hash rather than a URL:
// it starts with the hash prefix and contains only hex digits after it.
func IsHashToken(s string) bool {
	return hashToken.MatchString(strings.TrimSpace(s))
}

// IsURL reports whether raw should be treated as a web address.
func IsURL(raw ContentReference) bool {
	s := strings.ToLower(strings.TrimSpace(string(raw)))
	return strings.Contains(s, "://") || strings.HasPrefix(s, "http") || strings.Contains(s, "/")
}

// EnsureScheme prefixes schemeless references with https://. Hash tokens are
// returned untouched.
func EnsureScheme(raw ContentReference) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || IsHashToken(s) {
		return s
	}
	if strings.HasPrefix(strings.ToLower(s), "http") {
		return s
	}
	return "https://" + strings.TrimPrefix(s, "//")
}

// HashVariants returns the distinct textual forms an upstream linkage field
// may use for id: bare hex, 0x prefixed, and the reference as it was
// originally supplied when that was itself a hash token.
func HashVariants(id ContentID, origin ContentReference) []string {
	bare := strings.TrimPrefix(string(id), hashPrefix)
	candidates := []string{string(origin), bare, hashPrefix + bare}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || IsURL(ContentReference(c)) {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SameContent compares two hash spellings ignoring case and the 0x prefix.
func SameContent(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a)), hashPrefix)
	b = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(b)), hashPrefix)
	return a != "" && a == b
}

// ExplorerURL links to a public search page for raw, handed back to callers
// when a reference cannot be resolved.
func ExplorerURL(raw ContentReference) string {
	return "https://explorer.neynar.com/search?q=" + url.QueryEscape(strings.TrimSpace(string(raw)))
}
