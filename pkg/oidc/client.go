// Package oidc implements the OpenID Connect relying-party side of the
// sign-in flow: discovery, authorization URL construction, the PKCE code
// exchange and ID token verification.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dayloop/dayloop-go/pkg/oauth2"
	"github.com/go-playground/validator/v10"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Default bound on every call to the provider. The flow must never hold the
// session manager busy indefinitely.
const requestTimeout = 10 * time.Second

type Config struct {
	Issuer      string   `yaml:"issuer" validate:"required,url"`
	ClientID    string   `yaml:"client_id" validate:"required"`
	RedirectURI string   `yaml:"redirect_uri" validate:"required,url"`
	Scopes      []string `yaml:"scopes" validate:"required,min=1"`
}

// Client talks to a single OpenID provider as a public PKCE client. No
// client secret is involved anywhere in the flow.
type Client struct {
	cfg               Config
	discoveryDocument *DiscoveryDocument
	keyCache          *jwk.Cache
	httpClient        *http.Client
}

// NewClient validates the provider configuration, fetches the discovery
// document and primes the signing key cache. A missing client identifier is
// a fatal startup condition, not something to retry.
func NewClient(cfg Config) (*Client, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
	}

	var err error
	discoveryURL := strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/openid-configuration"
	c.discoveryDocument, err = FetchDiscoveryDocument(discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("fetch discovery document from %s: %w", discoveryURL, err)
	}

	c.keyCache = jwk.NewCache(context.Background())
	c.keyCache.Register(c.discoveryDocument.JwksURI, jwk.WithMinRefreshInterval(15*time.Minute))
	if _, err = c.keyCache.Refresh(context.Background(), c.discoveryDocument.JwksURI); err != nil {
		return nil, fmt.Errorf("fetch signing keys: %w", err)
	}

	return c, nil
}

func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

func (c *Client) RedirectURI() string {
	return c.cfg.RedirectURI
}

func (c *Client) Issuer() string {
	return c.discoveryDocument.Issuer
}

// AuthCodeURL builds the authorization request URL. access_type=offline and
// prompt=consent force the provider to issue a refresh token on every
// sign-in, which the calendar mirror depends on.
func (c *Client) AuthCodeURL(state, nonce, verifier string, opts ...oauth2.ParameterOption) string {
	query := url.Values{}
	query.Set("client_id", c.cfg.ClientID)
	query.Set("redirect_uri", c.cfg.RedirectURI)
	query.Set("response_type", "code")
	query.Set("scope", strings.Join(c.cfg.Scopes, " "))
	query.Set("state", state)
	query.Set("nonce", nonce)
	query.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	query.Set("code_challenge_method", string(oauth2.CodeChallengeMethodS256))
	query.Set("access_type", "offline")
	query.Set("prompt", "consent")

	for _, opt := range opts {
		opt(query)
	}

	return fmt.Sprintf("%s?%s", c.discoveryDocument.AuthorizationEndpoint, query.Encode())
}

// Exchange redeems an authorization code at the token endpoint. The code
// verifier takes the place of a client secret.
func (c *Client) Exchange(ctx context.Context, code, verifier string, opts ...oauth2.ParameterOption) (*oauth2.TokenResponse, error) {
	params := url.Values{}
	params.Set("client_id", c.cfg.ClientID)
	params.Set("code", code)
	params.Set("code_verifier", verifier)
	params.Set("grant_type", "authorization_code")
	params.Set("redirect_uri", c.cfg.RedirectURI)

	for _, opt := range opts {
		opt(params)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.discoveryDocument.TokenEndpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange code for token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var oidcErr oauth2.Error
		if err = json.Unmarshal(body, &oidcErr); err != nil {
			return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
		}
		return nil, &oidcErr
	}

	var tokenResponse oauth2.TokenResponse
	if err = json.Unmarshal(body, &tokenResponse); err != nil {
		return nil, fmt.Errorf("unable to decode token response: %w", err)
	}

	return &tokenResponse, nil
}

// ParseIDToken parses and verifies an ID token against the keys from the
// discovery document. A non-empty expectedNonce must match the token's
// nonce claim, binding the token to the authorization request that carried
// the nonce.
func (c *Client) ParseIDToken(serialized, expectedNonce string) (jwt.Token, error) {
	keySet, err := c.keyCache.Get(context.Background(), c.discoveryDocument.JwksURI)
	if err != nil {
		return nil, fmt.Errorf("unable to get key set: %w", err)
	}

	options := []jwt.ParseOption{
		jwt.WithKeySet(keySet),
		jwt.WithIssuer(c.discoveryDocument.Issuer),
		jwt.WithAudience(c.cfg.ClientID),
		jwt.WithRequiredClaim("exp"),
	}
	if expectedNonce != "" {
		options = append(options, jwt.WithClaimValue("nonce", expectedNonce))
	}

	token, err := jwt.ParseString(serialized, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse id token: %w", err)
	}
	return token, nil
}
