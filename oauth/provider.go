package oauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrInvalidConfig wraps every ProviderConfig.Validate failure.
	ErrInvalidConfig = errors.New("oauth: invalid provider config")
	// ErrUpstream marks any failure talking to the provider.
	ErrUpstream = errors.New("oauth: upstream error")
	// ErrInvalidProfile is returned when the profile has no usable subject id.
	ErrInvalidProfile = errors.New("oauth: invalid profile")
)

// reservedProviderID is the provider id of password accounts.
const reservedProviderID = "credential"

// ProviderConfig describes one OAuth 2.0 provider.
type ProviderConfig struct {
	ID               string
	ClientID         string
	ClientSecret     string
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	Scopes           []string
	// CallbackURL is the redirect_uri registered with the provider.
	CallbackURL string
}

// Validate checks that every field is present, that at least one non-blank
// scope is requested and that endpoints use HTTPS.
func (p ProviderConfig) Validate() error {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	if id == reservedProviderID {
		return fmt.Errorf("%w: id %q is reserved", ErrInvalidConfig, id)
	}
	if p.ClientID == "" {
		return fmt.Errorf("%w: %s: client id is required", ErrInvalidConfig, id)
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("%w: %s: client secret is required", ErrInvalidConfig, id)
	}
	if len(p.Scopes) == 0 {
		return fmt.Errorf("%w: %s: at least one scope is required", ErrInvalidConfig, id)
	}
	for i, scope := range p.Scopes {
		if strings.TrimSpace(scope) == "" {
			return fmt.Errorf("%w: %s: scope %d is blank", ErrInvalidConfig, id, i)
		}
	}

	endpoints := []struct {
		name, raw string
	}{
		{"authorization url", p.AuthorizationURL},
		{"token url", p.TokenURL},
		{"userinfo url", p.UserInfoURL},
		{"callback url", p.CallbackURL},
	}
	for _, e := range endpoints {
		if err := requireHTTPS(e.raw); err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrInvalidConfig, id, e.name, err)
		}
	}
	return nil
}

func requireHTTPS(raw string) error {
	if raw == "" {
		return errors.New("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" || u.Host == "" {
		return errors.New("must be an absolute https URL")
	}
	return nil
}
