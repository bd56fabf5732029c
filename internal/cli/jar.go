package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// storedCookie is one cookie as written to cookies.json
type storedCookie struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func (s storedCookie) expired(now time.Time) bool {
	return !s.Expires.IsZero() && !s.Expires.After(now)
}

// FileJar is a cookie jar that survives between runs, the way a browser keeps the
// backend's session cookies. Cookie matching is left to net/http/cookiejar.
type FileJar struct {
	path  string
	inner *cookiejar.Jar

	mu      sync.Mutex
	entries map[string]storedCookie
	dirty   bool
}

var _ http.CookieJar = (*FileJar)(nil)

// OpenJar loads path if it exists
func OpenJar(path string) (*FileJar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("[cli OpenJar] create jar: %w", err)
	}
	j := &FileJar{path: path, inner: inner, entries: make(map[string]storedCookie)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[cli OpenJar] read %s: %w", path, err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("[cli OpenJar] parse %s: %w", path, err)
	}
	now := time.Now()
	for _, s := range stored {
		u, err := url.Parse(s.URL)
		if err != nil || s.expired(now) {
			continue
		}
		j.entries[entryKey(u, s.Name)] = s
		j.inner.SetCookies(u, []*http.Cookie{{
			Name:     s.Name,
			Value:    s.Value,
			Path:     s.Path,
			Domain:   s.Domain,
			Expires:  s.Expires,
			Secure:   s.Secure,
			HttpOnly: s.HttpOnly,
		}})
	}
	return j, nil
}

func entryKey(u *url.URL, name string) string {
	return u.Scheme + "://" + u.Host + "|" + name
}

func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	origin := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	for _, c := range cookies {
		key := entryKey(u, c.Name)
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || c.Value == "" || (!expires.IsZero() && !expires.After(now)) {
			delete(j.entries, key)
			j.dirty = true
			continue
		}
		j.entries[key] = storedCookie{
			URL:      origin.String(),
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		j.dirty = true
	}
}

func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// Len is the number of stored cookies
func (j *FileJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Save writes the jar back to disk if anything changed. An empty jar removes the file.
func (j *FileJar) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.dirty {
		return nil
	}

	if len(j.entries) == 0 {
		if err := os.Remove(j.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("[cli FileJar.Save] remove %s: %w", j.path, err)
		}
		j.dirty = false
		return nil
	}

	stored := make([]storedCookie, 0, len(j.entries))
	for _, s := range j.entries {
		stored = append(stored, s)
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("[cli FileJar.Save] encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("[cli FileJar.Save] create dir: %w", err)
	}
	// cookies are credentials: owner read/write only
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return fmt.Errorf("[cli FileJar.Save] write %s: %w", j.path, err)
	}
	j.dirty = false
	return nil
}

// Clear forgets every cookie; the file goes on the next Save
func (j *FileJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for key, s := range j.entries {
		if u, err := url.Parse(s.URL); err == nil {
			j.inner.SetCookies(u, []*http.Cookie{{Name: s.Name, Path: s.Path, Domain: s.Domain, MaxAge: -1}})
		}
		delete(j.entries, key)
	}
	j.dirty = true
}
