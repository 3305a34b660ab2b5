// Package auth validates the API keys and short-lived tokens that guard
// the HTTP transports. Keys live in the config file as hashes; a valid
// key can be exchanged for an HS256 token so clients do not have to send
// the key itself on every request.
package auth

import (
	"errors"
	"time"

	"github.com/toolgate/toolgate/internal/config"
)

// ErrBadCredentials is returned when no configured key matches.
var ErrBadCredentials = errors.New("bad credentials")

// Authenticator checks presented credentials against the configured key
// set.
type Authenticator struct {
	cfg    config.AuthConfig
	issuer *TokenIssuer
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	return &Authenticator{
		cfg:    cfg,
		issuer: NewTokenIssuer(cfg.JWTSecret, ttl),
	}
}

// Enabled reports whether requests must authenticate.
func (a *Authenticator) Enabled() bool { return a.cfg.Enabled }

// VerifyAPIKey matches a presented key against every configured hash and
// returns the matching key's name.
func (a *Authenticator) VerifyAPIKey(presented string) (string, error) {
	if !ValidKeyFormat(presented) {
		return "", ErrBadCredentials
	}
	for _, k := range a.cfg.Keys {
		if VerifyKey(presented, k.Hash) {
			return k.Name, nil
		}
	}
	return "", ErrBadCredentials
}

// ExchangeKey trades a valid API key for a short-lived token.
func (a *Authenticator) ExchangeKey(presented string) (token string, expires time.Time, err error) {
	name, err := a.VerifyAPIKey(presented)
	if err != nil {
		return "", time.Time{}, err
	}
	return a.issuer.Mint(name)
}

// VerifyBearer accepts either a raw API key or a minted token and returns
// the principal it belongs to.
func (a *Authenticator) VerifyBearer(credential string) (string, error) {
	if credential == "" {
		return "", ErrBadCredentials
	}
	if ValidKeyFormat(credential) {
		return a.VerifyAPIKey(credential)
	}
	claims, err := a.issuer.Verify(credential)
	if err != nil {
		return "", err
	}
	return claims.KeyName, nil
}
