package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

var (
	expiresParamRe = regexp.MustCompile(`Expires=(\d+)`)
	embeddedNameRe = regexp.MustCompile(`-FN-([^/]+)`)
)

// AccessURLExpiry returns the instant encoded by the first "Expires=<seconds>"
// marker of a signed URL.
func AccessURLExpiry(url string) (time.Time, bool) {
	matches := expiresParamRe.FindStringSubmatch(url)
	if len(matches) < 2 {
		return time.Time{}, false
	}
	seconds, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0), true
}

// IsAccessURLExpired reports whether a signed URL is no longer usable at now.
// URLs without a readable expiry marker count as expired.
func IsAccessURLExpired(url string, now time.Time) bool {
	expiry, ok := AccessURLExpiry(url)
	if !ok {
		return true
	}
	return !expiry.After(now)
}

// DisplayName derives a file name from the "-FN-<name>" segment of a locator,
// or synthesizes one from the media subtype.
func DisplayName(locator string, mediaType domain.MediaType) string {
	if matches := embeddedNameRe.FindStringSubmatch(locator); len(matches) == 2 && matches[1] != "" {
		return matches[1]
	}
	subtype := string(mediaType.Essence())
	if i := strings.IndexByte(subtype, '/'); i >= 0 {
		subtype = subtype[i+1:]
	}
	if subtype == "" {
		subtype = "unknown"
	}
	return "Generated_" + subtype + "_file"
}
