package creds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tradeflow/internal/model"
	"tradeflow/logger"
)

// refreshMargin is subtracted from the token lifetime so a token is renewed
// before the venue would start rejecting it mid-request.
const refreshMargin = 60 * time.Second

type session struct {
	accessToken string
	expiresAt   time.Time
}

func (s *session) valid(now time.Time) bool {
	return s != nil && s.accessToken != "" && now.Before(s.expiresAt.Add(-refreshMargin))
}

// TokenSource manages an OAuth2 client-credentials session for venues that
// authenticate with bearer tokens. Concurrent callers that find the token
// expired share a single refresh through singleflight; losers of the race
// reuse the winner's token instead of issuing their own grant.
type TokenSource struct {
	venue        string
	authURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	log          *logger.Entry

	mu      sync.RWMutex
	current *session

	group singleflight.Group
}

// NewTokenSource builds a token source for the given token endpoint.
func NewTokenSource(venue, authURL, clientID, clientSecret string, client *http.Client) *TokenSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenSource{
		venue:        venue,
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
		log:          logger.GetLogger().WithVenue(venue).WithComponent("token_source"),
	}
}

// Token returns a bearer token that is valid for at least refreshMargin.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	now := time.Now()

	t.mu.RLock()
	cur := t.current
	t.mu.RUnlock()
	if cur.valid(now) {
		return cur.accessToken, nil
	}

	v, err, _ := t.group.Do("refresh", func() (interface{}, error) {
		// Another caller may have refreshed while we queued.
		t.mu.RLock()
		cur := t.current
		t.mu.RUnlock()
		if cur.valid(time.Now()) {
			return cur.accessToken, nil
		}
		return t.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the current session so the next Token call refreshes. Call
// it when the venue rejects a request with an authentication error.
func (t *TokenSource) Invalidate() {
	t.mu.Lock()
	t.current = nil
	t.mu.Unlock()
}

func (t *TokenSource) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", model.NewVenueError(t.venue, "token_refresh", model.KindConnection, "", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", model.NewVenueError(t.venue, "token_refresh", model.KindTransientNetwork, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", model.NewVenueError(t.venue, "token_refresh", model.KindAuthentication,
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", model.NewVenueError(t.venue, "token_refresh", model.KindTransientNetwork,
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode), nil)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", model.NewVenueError(t.venue, "token_refresh", model.KindConnection, "malformed token response", err)
	}
	if body.AccessToken == "" {
		return "", model.NewVenueError(t.venue, "token_refresh", model.KindAuthentication, "token response without access_token", nil)
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 1200
	}

	sess := &session{
		accessToken: body.AccessToken,
		expiresAt:   time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}

	t.mu.Lock()
	t.current = sess
	t.mu.Unlock()

	t.log.WithFields(logger.Fields{"expires_in": body.ExpiresIn}).Debug("refreshed access token")
	return sess.accessToken, nil
}
