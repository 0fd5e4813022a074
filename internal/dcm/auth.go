package dcm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const trafficingScope = "https://www.googleapis.com/auth/dfatrafficking"

// Auth holds the OAuth configuration and persisted token used to call the
// trafficking API.
type Auth struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenPath string
}

func NewAuth(clientID, clientSecret, tokenPath string) *Auth {
	return &Auth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{trafficingScope},
			RedirectURL:  "http://localhost:8085/callback",
		},
		tokenPath: tokenPath,
	}
}

func (a *Auth) LoadToken() error {
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	a.token = &token
	return nil
}

func (a *Auth) SaveToken() error {
	data, err := json.MarshalIndent(a.token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	if err := os.WriteFile(a.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}

	return nil
}

func (a *Auth) AuthCodeURL() string {
	return a.config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and persists it.
func (a *Auth) Exchange(ctx context.Context, code string) error {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	a.token = token
	return a.SaveToken()
}

// Client returns an HTTP client that attaches and refreshes the OAuth token.
func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	if a.token == nil {
		if err := a.LoadToken(); err != nil {
			return nil, err
		}
	}

	return a.config.Client(ctx, a.token), nil
}

func (a *Auth) IsAuthenticated() bool {
	if a.token == nil {
		if err := a.LoadToken(); err != nil {
			return false
		}
	}
	return a.token != nil && a.token.Valid()
}
