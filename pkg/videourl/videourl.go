// Package videourl extracts a provider video id from the URL shapes people
// paste: watch links, short links, embeds, shorts, or a bare id.
package videourl

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIdRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Parse returns the 11-character video id, or false when the input is not a
// recognizable video reference.
func Parse(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	if videoIdRe.MatchString(input) {
		return input, true
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + input)
		if err != nil {
			return "", false
		}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtu.be":
		return validateId(strings.TrimPrefix(u.Path, "/"))
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id, ok := validateId(u.Query().Get("v")); ok {
			return id, true
		}
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				return validateId(strings.SplitN(strings.TrimPrefix(u.Path, prefix), "/", 2)[0])
			}
		}
	}

	return "", false
}

func validateId(candidate string) (string, bool) {
	if videoIdRe.MatchString(candidate) {
		return candidate, true
	}
	return "", false
}
