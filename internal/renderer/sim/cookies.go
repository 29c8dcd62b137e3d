package sim

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
)

// cookieJar backs document.cookie and the loader's HTTP client. Documents
// without an http(s) origin have no cookies: reads return "" and writes are
// ignored.
type cookieJar struct {
	jar *cookiejar.Jar
}

func newCookieJar() *cookieJar {
	// cookiejar.New only fails on a bad PublicSuffixList option.
	jar, _ := cookiejar.New(nil)
	return &cookieJar{jar: jar}
}

func hasCookieOrigin(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// get renders the cookies visible to u as "a=1; b=2".
func (c *cookieJar) get(u *url.URL) string {
	if !hasCookieOrigin(u) {
		return ""
	}
	var parts []string
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == "" {
			parts = append(parts, ck.Value)
			continue
		}
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

// set applies one document.cookie assignment. An expiry in the past deletes
// the cookie.
func (c *cookieJar) set(u *url.URL, line string) {
	if !hasCookieOrigin(u) {
		return
	}
	ck, err := http.ParseSetCookie(line)
	if err != nil || ck.HttpOnly {
		return
	}
	c.jar.SetCookies(u, []*http.Cookie{ck})
}
