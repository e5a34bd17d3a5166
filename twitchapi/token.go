package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"
	expiryBuffer    = time.Minute
)

// ErrMissingCredentials means no client id/secret was configured.
var ErrMissingCredentials = errors.New("missing client id/secret for twitch app token")

// TokenSource hands out a Twitch app access token (client credentials grant),
// reusing it until a minute before expiry.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	// TokenURL defaults to the Twitch identity endpoint.
	TokenURL   string
	HTTPClient *http.Client

	mu  sync.Mutex
	src oauth2.TokenSource
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", ErrMissingCredentials
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := ts.source().Token()
	if err != nil {
		return "", fmt.Errorf("twitch app token: %w", err)
	}
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next Get fetches a new one.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.src = nil
	ts.mu.Unlock()
}

// source lazily builds the reusing token source. Token fetches run on a
// background context because the source outlives any single request.
func (ts *TokenSource) source() oauth2.TokenSource {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.src != nil {
		return ts.src
	}
	url := ts.TokenURL
	if url == "" {
		url = defaultTokenURL
	}
	cc := clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     url,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.Background()
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	ts.src = oauth2.ReuseTokenSourceWithExpiry(nil, fetcher{cc: &cc, ctx: ctx}, expiryBuffer)
	return ts.src
}

// fetcher requests a new token on every call; caching is left to the
// wrapping ReuseTokenSource so expiryBuffer applies.
type fetcher struct {
	cc  *clientcredentials.Config
	ctx context.Context
}

func (f fetcher) Token() (*oauth2.Token, error) { return f.cc.Token(f.ctx) }
