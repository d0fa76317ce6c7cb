package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials fetches machine-to-machine tokens with the OAuth2 client
// credentials grant.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Audience is sent as the audience parameter when set.
	Audience   string
	HTTPClient *http.Client
}

func (c ClientCredentials) config() *clientcredentials.Config {
	cfg := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
	}
	if c.Audience != "" {
		cfg.EndpointParams = url.Values{"audience": {c.Audience}}
	}
	return cfg
}

// FetchToken requests a new token. Caching is left to TokenCache, so every
// call goes to the token endpoint.
func (c ClientCredentials) FetchToken(ctx context.Context) (Token, error) {
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}
	tok, err := c.config().Token(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("requesting client credentials token: %w", err)
	}
	return Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}
