package tokenstore

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process channel. It is the primary channel in most
// deployments and the only one that works when cookies are blocked.
type Memory struct {
	mu  sync.RWMutex
	rec Record
	set bool
}

// NewMemory creates an empty in-memory channel.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Write(rec Record) error {
	m.mu.Lock()
	m.rec = rec
	m.set = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Read() (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return Record{}, ErrEmpty
	}
	return m.rec, nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.rec = Record{}
	m.set = false
	m.mu.Unlock()
	return nil
}

// Cookie channel names.
const (
	cookieAccess  = "authkit_access_token"
	cookieRefresh = "authkit_refresh_token"
	cookieExpiry  = "authkit_expires_at"
)

// Cookie persists tokens through an http.CookieJar scoped to the API origin,
// so they ride along on same-origin requests and survive process handoffs
// that share the jar.
type Cookie struct {
	jar http.CookieJar
	u   *url.URL
}

// NewCookie creates a cookie channel over the given jar and API base URL.
func NewCookie(jar http.CookieJar, baseURL string) (*Cookie, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("tokenstore: base URL must be absolute, got %q", baseURL)
	}
	return &Cookie{jar: jar, u: u}, nil
}

func (c *Cookie) Name() string { return "cookie" }

func (c *Cookie) Write(rec Record) error {
	maxAge := int(time.Until(rec.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 60
	}
	cookies := []*http.Cookie{
		{Name: cookieAccess, Value: rec.AccessToken, Path: "/", MaxAge: maxAge},
		{Name: cookieExpiry, Value: strconv.FormatInt(rec.ExpiresAt.Unix(), 10), Path: "/", MaxAge: maxAge},
	}
	if rec.RefreshToken != "" {
		// Refresh cookie outlives the access token so recovery works
		// after hard expiry.
		cookies = append(cookies, &http.Cookie{
			Name: cookieRefresh, Value: rec.RefreshToken, Path: "/",
			MaxAge: int((30 * 24 * time.Hour).Seconds()),
		})
	}
	c.jar.SetCookies(c.u, cookies)
	return nil
}

func (c *Cookie) Read() (Record, error) {
	var rec Record
	for _, ck := range c.jar.Cookies(c.u) {
		switch ck.Name {
		case cookieAccess:
			rec.AccessToken = ck.Value
		case cookieRefresh:
			rec.RefreshToken = ck.Value
		case cookieExpiry:
			if unix, err := strconv.ParseInt(ck.Value, 10, 64); err == nil {
				rec.ExpiresAt = time.Unix(unix, 0)
			}
		}
	}
	if rec.empty() {
		return Record{}, ErrEmpty
	}
	return rec, nil
}

func (c *Cookie) Clear() error {
	expired := make([]*http.Cookie, 0, 3)
	for _, name := range []string{cookieAccess, cookieRefresh, cookieExpiry} {
		expired = append(expired, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
	c.jar.SetCookies(c.u, expired)
	return nil
}
