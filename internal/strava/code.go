package strava

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrCodeNotFound = errors.New("authorization code not found")
	ErrAccessDenied = errors.New("authorization denied by user")
)

// Callback is what the authorization server sent back on the redirect.
type Callback struct {
	Code   string
	State  string
	Scopes []string
}

// ParseCode extracts the authorization code from a redirect URL such as
//
//	http://127.0.0.1:8000/authorization?state=&code=b8231b08&scope=read,read_all
//
// A bare code pasted by hand is returned as is.
func ParseCode(raw string) (Callback, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Callback{}, ErrCodeNotFound
	}

	if strings.ContainsAny(raw, "?=&/") {
		if cb, ok, err := parseQuery(raw); ok {
			return cb, err
		}
		return sliceCode(raw)
	}

	return Callback{Code: raw}, nil
}

func parseQuery(raw string) (Callback, bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Callback{}, false, nil
	}

	q := u.Query()
	if len(q) == 0 && u.RawQuery == "" {
		q, err = url.ParseQuery(raw)
		if err != nil {
			return Callback{}, false, nil
		}
	}

	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return Callback{}, true, ErrAccessDenied
		}
		return Callback{}, true, fmt.Errorf("authorization failed: %s", e)
	}

	code := q.Get("code")
	if code == "" {
		return Callback{}, false, nil
	}

	cb := Callback{Code: code, State: q.Get("state")}
	if s := q.Get("scope"); s != "" {
		cb.Scopes = strings.Split(s, ",")
	}
	return cb, true, nil
}

// sliceCode is the last resort for strings that are not valid URLs: take
// everything between "code=" and the next "&".
func sliceCode(raw string) (Callback, error) {
	const marker = "code="

	start := strings.Index(raw, marker)
	if start < 0 {
		return Callback{}, ErrCodeNotFound
	}
	rest := raw[start+len(marker):]
	if end := strings.IndexByte(rest, '&'); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return Callback{}, ErrCodeNotFound
	}
	return Callback{Code: rest}, nil
}
