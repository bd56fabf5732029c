package apiclient

import (
	"net/http"
	"sync"
	"time"
)

// Mode is the execution context a client runs in
type Mode int

const (
	// ModeBrowser is a long-lived client whose http.Client owns a cookie jar
	ModeBrowser Mode = iota
	// ModeServer is one inbound request on the web front; cookies are carried explicitly
	ModeServer
)

func (m Mode) String() string {
	if m == ModeServer {
		return "server"
	}
	return "browser"
}

// Credentials attaches the session credential to outbound calls and records any
// renewed credential the backend returns.
type Credentials interface {
	Mode() Mode
	Apply(req *http.Request)
	Capture(resp *http.Response)
}

// Ambient leaves cookies to the http.Client's jar
type Ambient struct{}

var _ Credentials = Ambient{}

func (Ambient) Mode() Mode { return ModeBrowser }

func (Ambient) Apply(*http.Request) {}

func (Ambient) Capture(*http.Response) {}

// Forwarded carries the inbound request's cookies to the backend. Cookies set by the
// backend replace the carried ones, so a retried call uses the renewed credential, and
// are copied onto the outbound response so the browser receives them.
type Forwarded struct {
	mu      sync.Mutex
	cookies []*http.Cookie
	out     http.Header
}

var _ Credentials = (*Forwarded)(nil)

// NewForwarded seeds the carrier with inbound cookies. out is the header map of the
// response being written to the browser; it may be nil.
func NewForwarded(inbound []*http.Cookie, out http.Header) *Forwarded {
	f := &Forwarded{out: out}
	for _, c := range inbound {
		f.cookies = append(f.cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return f
}

func (f *Forwarded) Mode() Mode { return ModeServer }

func (f *Forwarded) Apply(req *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func (f *Forwarded) Capture(resp *http.Response) {
	setCookies := resp.Header.Values("Set-Cookie")
	if len(setCookies) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out != nil {
		for _, line := range setCookies {
			f.out.Add("Set-Cookie", line)
		}
	}
	for _, c := range resp.Cookies() {
		f.replace(c)
	}
}

// Cookies returns a copy of the carried cookies
func (f *Forwarded) Cookies() []*http.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	cookies := make([]*http.Cookie, 0, len(f.cookies))
	for _, c := range f.cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies
}

// Empty reports whether no credential is carried at all
func (f *Forwarded) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cookies) == 0
}

func (f *Forwarded) replace(c *http.Cookie) {
	removed := c.MaxAge < 0 || c.Value == "" ||
		(!c.Expires.IsZero() && c.Expires.Before(time.Now()))

	kept := f.cookies[:0]
	for _, existing := range f.cookies {
		if existing.Name != c.Name {
			kept = append(kept, existing)
		}
	}
	f.cookies = kept
	if !removed {
		f.cookies = append(f.cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
}
