package credential

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// NewSessionJar returns a cookie jar holding the sign-in cookies for siteURL.
func NewSessionJar(siteURL string, cookies []*http.Cookie) (http.CookieJar, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse site url: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, cookies)
	return jar, nil
}

// EmptyJar returns a jar with no cookies, used to drop a session's cookies on close.
func EmptyJar() http.CookieJar {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}
