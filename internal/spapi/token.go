package spapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/spapi-finances-pipeline/internal/config"
)

// TokenProvider supplies the bearer credential attached to page requests.
// Token may be called redundantly; Refresh discards any cached credential
// and obtains a fresh one, which the fetcher uses on authorization failure.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// LWATokenProvider exchanges a long-lived LWA refresh token for short-lived
// access tokens. Tokens are cached until expiry by the underlying oauth2
// token source.
type LWATokenProvider struct {
	conf         *oauth2.Config
	refreshToken string
	logger       *slog.Logger

	mu     sync.Mutex
	source oauth2.TokenSource
}

func NewLWATokenProvider(logger *slog.Logger, cfg *config.LWAConfig) *LWATokenProvider {
	return &LWATokenProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
		refreshToken: cfg.RefreshToken,
		logger:       logger,
	}
}

// Token returns the current access token, fetching one if none is cached
func (p *LWATokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token(ctx)
}

// Refresh drops the cached token source and obtains a new access token
func (p *LWATokenProvider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info("Refreshing LWA access token")
	p.source = nil
	return p.token(ctx)
}

func (p *LWATokenProvider) token(ctx context.Context) (string, error) {
	if p.source == nil {
		p.source = p.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: p.refreshToken})
	}

	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain LWA access token: %w", err)
	}

	return tok.AccessToken, nil
}

// StaticTokenProvider returns a fixed credential. Used in mock mode and
// tests where no token endpoint exists.
type StaticTokenProvider struct {
	Value string
}

func (p StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return p.Value, nil
}

func (p StaticTokenProvider) Refresh(ctx context.Context) (string, error) {
	return p.Value, nil
}
