// Package cli is the terminal client. One process is one execution context: its
// session store lives for the run, and the backend's cookies persist in a jar file
// between runs.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/jrsteele09/readit-web/apiclient"
	"github.com/jrsteele09/readit-web/auth"
	"github.com/jrsteele09/readit-web/internal/config"
	"github.com/jrsteele09/readit-web/marketplace"
	"github.com/jrsteele09/readit-web/sessions"
	"github.com/jrsteele09/readit-web/token/jwt"
)

var (
	ErrNotLoggedIn = errors.New("not logged in: run `readit login`")
	ErrUnverified  = errors.New("email address not verified: run `readit verify --code <code>`")
)

// App wires the session layer for one run of the terminal client
type App struct {
	Config  Config
	Dir     string
	Jar     *FileJar
	Context *auth.ExecutionContext
	Market  *marketplace.API

	apiURL *url.URL
}

// NewApp loads the settings and cookie jar from dir. Notices for the user go to notices.
func NewApp(dir string, notices io.Writer) (*App, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	apiURL, err := url.Parse(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("[cli NewApp] api_url: %w", err)
	}
	jar, err := OpenJar(filepath.Join(dir, cookieFileName))
	if err != nil {
		return nil, err
	}

	client := apiclient.New(
		apiclient.Config{BaseURL: cfg.APIURL, Timeout: cfg.Timeout},
		apiclient.Ambient{},
		apiclient.WithHTTPClient(&http.Client{Jar: jar, Timeout: cfg.Timeout}),
		apiclient.WithNavigator(apiclient.NavigatorFunc(func(context.Context) {
			fmt.Fprintln(notices, "Your session has expired. Run `readit login` to sign in again.")
		})),
	)
	ec := auth.NewExecutionContext(client, config.DefaultSession())

	app := &App{
		Config:  cfg,
		Dir:     dir,
		Jar:     jar,
		Context: ec,
		Market:  marketplace.NewAPI(client),
		apiURL:  apiURL,
	}
	if expiry, err := jwt.ExpiryFromCookies(jar.Cookies(apiURL), ""); err == nil {
		ec.Store.Set(sessions.Patch{AccessTokenExpiresAt: &expiry})
	}
	return app, nil
}

// Close saves the cookie jar and tears the execution context down
func (a *App) Close() error {
	defer a.Context.Close()
	return a.Jar.Save()
}

// RequireSession runs the route guard for path and turns a denial into an error the
// user can act on
func (a *App) RequireSession(ctx context.Context, path string) error {
	d := a.Context.Guard.Check(ctx, auth.Destination{Path: path})
	if d.Allow {
		return nil
	}
	if d.State == auth.StateUnverified {
		return ErrUnverified
	}
	return ErrNotLoggedIn
}
