package config

type GoogleConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleIssuer() string
	GetGoogleRedirectURL() string
	GoogleSignInEnabled() bool
}

type Google struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	Issuer       string `env:"GOOGLE_ISSUER" envDefault:"https://accounts.google.com"`
	// RedirectURL defaults to BASE_URL + /auth/google/callback
	RedirectURL  string `env:"GOOGLE_REDIRECT_URL"`
}

var _ GoogleConfig = Google{}

func (g Google) GetGoogleClientID() string {
	return g.ClientID
}

func (g Google) GetGoogleClientSecret() string {
	return g.ClientSecret
}

func (g Google) GetGoogleIssuer() string {
	return g.Issuer
}

func (g Google) GetGoogleRedirectURL() string {
	return g.RedirectURL
}

func (g Google) GoogleSignInEnabled() bool {
	return g.ClientID != ""
}
