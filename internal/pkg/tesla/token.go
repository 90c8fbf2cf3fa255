package tesla

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/crypto"
)

const ownerAPIClientID = "ownerapi"

var ErrNoCredentials = errors.New("no cached token and no refresh token configured")

func oauthConfig(authURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: ownerAPIClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL + "/authorize",
			TokenURL:  authURL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{"openid", "email", "offline_access"},
	}
}

// TokenCache persists the provider session between restarts. When a crypto
// util is set the file is encrypted at rest.
type TokenCache struct {
	path string
	util *crypto.Util
}

func NewTokenCache(path string, util *crypto.Util) *TokenCache {
	return &TokenCache{path: path, util: util}
}

func (c *TokenCache) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}

	if c.util != nil {
		b, err = c.util.Decrypt(b)
		if err != nil {
			return nil, fmt.Errorf("decrypting token cache: %w", err)
		}
	}

	var t oauth2.Token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("unmarshalling token cache: %w", err)
	}
	return &t, nil
}

func (c *TokenCache) Save(t *oauth2.Token) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}

	if c.util != nil {
		b, err = c.util.Encrypt(b)
		if err != nil {
			return fmt.Errorf("encrypting token cache: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("creating token cache dir: %w", err)
	}
	return os.WriteFile(c.path, b, 0600)
}

// cachingTokenSource writes every newly issued token to the cache.
type cachingTokenSource struct {
	base   oauth2.TokenSource
	cache  *TokenCache
	logger *zap.SugaredLogger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *cachingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil || s.last.AccessToken != t.AccessToken {
		s.logger.Debug("Provider token refreshed, updating cache")
		if err := s.cache.Save(t); err != nil {
			s.logger.Errorf("saving token cache: %s", err)
		}
	}
	s.last = t
	return t, nil
}

func (s *cachingTokenSource) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return nil
	}
	return s.cache.Save(s.last)
}

// initialToken prefers the cached session and falls back to the configured
// refresh token.
func initialToken(cache *TokenCache, refreshToken string, logger *zap.SugaredLogger) (*oauth2.Token, error) {
	t, err := cache.Load()
	if err == nil && (t.AccessToken != "" || t.RefreshToken != "") {
		return t, nil
	}

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("reading token cache, falling back to refresh token: %s", err)
	} else {
		logger.Info("No cached token found - using configured refresh token")
	}

	if refreshToken == "" {
		return nil, ErrNoCredentials
	}
	return &oauth2.Token{RefreshToken: refreshToken}, nil
}
