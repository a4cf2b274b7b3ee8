package redisstore

import (
	"encoding/json"
	"time"

	"github.com/natedunn/convex-zen-sub000/seal"
	"github.com/natedunn/convex-zen-sub000/store"
)

type userRecord struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name,omitempty"`
	Image         string    `json:"image,omitempty"`
	Role          string    `json:"role,omitempty"`
	Banned        bool      `json:"banned,omitempty"`
	BanReason     string    `json:"ban_reason,omitempty"`
	BanExpires    time.Time `json:"ban_expires,omitzero"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type accountRecord struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	ProviderID           string    `json:"provider_id"`
	AccountID            string    `json:"account_id"`
	PasswordHash         string    `json:"password_hash,omitempty"`
	AccessToken          string    `json:"access_token,omitempty"`
	RefreshToken         string    `json:"refresh_token,omitempty"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at,omitzero"`
	Scope                string    `json:"scope,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type sessionRecord struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	TokenHash         string    `json:"token_hash"`
	ExpiresAt         time.Time `json:"expires_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	LastActiveAt      time.Time `json:"last_active_at"`
	IPAddress         string    `json:"ip_address,omitempty"`
	UserAgent         string    `json:"user_agent,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type verificationRecord struct {
	Identifier string    `json:"identifier"`
	Type       string    `json:"type"`
	CodeHash   string    `json:"code_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
}

type oauthStateRecord struct {
	StateHash    string    `json:"state_hash"`
	ProviderID   string    `json:"provider_id"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURL  string    `json:"redirect_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type rateLimitRecord struct {
	Key         string    `json:"key"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
	LockedUntil time.Time `json:"locked_until,omitzero"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

func encodeUser(u *store.User) ([]byte, error) {
	return json.Marshal(userRecord{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
		Image:         u.Image,
		Role:          u.Role,
		Banned:        u.Banned,
		BanReason:     u.BanReason,
		BanExpires:    u.BanExpires,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	})
}

func decodeUser(data []byte) (*store.User, error) {
	var r userRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &store.User{
		ID:            r.ID,
		Email:         r.Email,
		EmailVerified: r.EmailVerified,
		Name:          r.Name,
		Image:         r.Image,
		Role:          r.Role,
		Banned:        r.Banned,
		BanReason:     r.BanReason,
		BanExpires:    r.BanExpires,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func encodeAccount(a *store.Account) ([]byte, error) {
	return json.Marshal(accountRecord{
		ID:                   a.ID,
		UserID:               a.UserID,
		ProviderID:           a.ProviderID,
		AccountID:            a.AccountID,
		PasswordHash:         a.PasswordHash,
		AccessToken:          seal.Encode(a.AccessToken),
		RefreshToken:         seal.Encode(a.RefreshToken),
		AccessTokenExpiresAt: a.AccessTokenExpiresAt,
		Scope:                a.Scope,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	})
}

func decodeAccount(data []byte) (*store.Account, error) {
	var r accountRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	access, err := seal.Decode(r.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := seal.Decode(r.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &store.Account{
		ID:                   r.ID,
		UserID:               r.UserID,
		ProviderID:           r.ProviderID,
		AccountID:            r.AccountID,
		PasswordHash:         r.PasswordHash,
		AccessToken:          access,
		RefreshToken:         refresh,
		AccessTokenExpiresAt: r.AccessTokenExpiresAt,
		Scope:                r.Scope,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}, nil
}

func encodeSession(s *store.Session) ([]byte, error) {
	return json.Marshal(sessionRecord{
		ID:                s.ID,
		UserID:            s.UserID,
		TokenHash:         s.TokenHash,
		ExpiresAt:         s.ExpiresAt,
		AbsoluteExpiresAt: s.AbsoluteExpiresAt,
		LastActiveAt:      s.LastActiveAt,
		IPAddress:         s.IPAddress,
		UserAgent:         s.UserAgent,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	})
}

func decodeSession(data []byte) (*store.Session, error) {
	var r sessionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &store.Session{
		ID:                r.ID,
		UserID:            r.UserID,
		TokenHash:         r.TokenHash,
		ExpiresAt:         r.ExpiresAt,
		AbsoluteExpiresAt: r.AbsoluteExpiresAt,
		LastActiveAt:      r.LastActiveAt,
		IPAddress:         r.IPAddress,
		UserAgent:         r.UserAgent,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

func encodeVerification(v *store.Verification) ([]byte, error) {
	return json.Marshal(verificationRecord{
		Identifier: v.Identifier,
		Type:       string(v.Type),
		CodeHash:   v.CodeHash,
		ExpiresAt:  v.ExpiresAt,
		Attempts:   v.Attempts,
		CreatedAt:  v.CreatedAt,
	})
}

func decodeVerification(data []byte) (*store.Verification, error) {
	var r verificationRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &store.Verification{
		Identifier: r.Identifier,
		Type:       store.VerificationType(r.Type),
		CodeHash:   r.CodeHash,
		ExpiresAt:  r.ExpiresAt,
		Attempts:   r.Attempts,
		CreatedAt:  r.CreatedAt,
	}, nil
}

func encodeOAuthState(o *store.OAuthState) ([]byte, error) {
	return json.Marshal(oauthStateRecord{
		StateHash:    o.StateHash,
		ProviderID:   o.ProviderID,
		CodeVerifier: o.CodeVerifier,
		RedirectURL:  o.RedirectURL,
		ExpiresAt:    o.ExpiresAt,
		CreatedAt:    o.CreatedAt,
	})
}

func decodeOAuthState(data []byte) (*store.OAuthState, error) {
	var r oauthStateRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &store.OAuthState{
		StateHash:    r.StateHash,
		ProviderID:   r.ProviderID,
		CodeVerifier: r.CodeVerifier,
		RedirectURL:  r.RedirectURL,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func encodeRateLimit(rl *store.RateLimit) ([]byte, error) {
	return json.Marshal(rateLimitRecord{
		Key:         rl.Key,
		WindowStart: rl.WindowStart,
		Count:       rl.Count,
		LockedUntil: rl.LockedUntil,
		ExpiresAt:   rl.ExpiresAt,
	})
}

func decodeRateLimit(data []byte) (*store.RateLimit, error) {
	var r rateLimitRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &store.RateLimit{
		Key:         r.Key,
		WindowStart: r.WindowStart,
		Count:       r.Count,
		LockedUntil: r.LockedUntil,
		ExpiresAt:   r.ExpiresAt,
	}, nil
}
