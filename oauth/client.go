package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultHTTPTimeout bounds every provider call made by a Client built
	// without an explicit HTTP client.
	DefaultHTTPTimeout = 10 * time.Second

	maxProfileBytes = 1 << 20
)

// Token is the result of a code exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// Profile is the subset of the provider's user info the Engine uses.
type Profile struct {
	ID    string
	Email string
	Name  string
	Image string
}

// Client performs the provider calls for one ProviderConfig. It is safe for
// concurrent use.
type Client struct {
	provider ProviderConfig
	oauth    *oauth2.Config
	http     *http.Client
}

// NewClient validates p and returns a Client. A nil httpClient gets a client
// with [DefaultHTTPTimeout].
func NewClient(p ProviderConfig, httpClient *http.Client) (*Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	return &Client{
		provider: p,
		http:     httpClient,
		oauth: &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   p.AuthorizationURL,
				TokenURL:  p.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: p.CallbackURL,
			Scopes:      append([]string(nil), p.Scopes...),
		},
	}, nil
}

// ProviderID returns the id of the provider this client talks to.
func (c *Client) ProviderID() string { return c.provider.ID }

// AuthCodeURL returns the authorization URL carrying state and an S256 PKCE
// challenge.
func (c *Client) AuthCodeURL(state, codeChallenge string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange redeems an authorization code. It is never retried.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*Token, error) {
	tok, err := c.oauth.Exchange(c.withHTTP(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: token exchange: %v", ErrUpstream, c.provider.ID, err)
	}

	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out, nil
}

// Profile fetches the user info document with the access token as a Bearer
// credential. The subject is read from "id" or "sub", string or numeric.
func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	ctx = c.withHTTP(ctx)
	hc := c.oauth.Client(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.provider.UserInfoURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, c.provider.ID, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: userinfo: %v", ErrUpstream, c.provider.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return nil, fmt.Errorf("%w: %s: userinfo returned %d", ErrUpstream, c.provider.ID, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: decode userinfo: %v", ErrUpstream, c.provider.ID, err)
	}

	return parseProfile(raw)
}

func (c *Client) withHTTP(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func parseProfile(raw map[string]any) (*Profile, error) {
	id := stringField(raw, "id")
	if id == "" {
		id = stringField(raw, "sub")
	}
	if id == "" {
		return nil, ErrInvalidProfile
	}

	p := &Profile{
		ID:    id,
		Email: strings.ToLower(strings.TrimSpace(stringField(raw, "email"))),
		Name:  stringField(raw, "name"),
		Image: stringField(raw, "picture"),
	}
	if p.Image == "" {
		p.Image = stringField(raw, "avatar_url")
	}
	return p, nil
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
