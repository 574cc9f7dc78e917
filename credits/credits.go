// Package credits resolves contributor credit ids to user profiles of the
// chat service the contributors are registered with.
package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sardine-ai/spritecollab-server/cache"
	"github.com/sardine-ai/spritecollab-server/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultAPIURL is the base URL of the Discord REST API.
const DefaultAPIURL = "https://discord.com/api/v10"

const (
	keyPrefix          = "discord_user:"
	prewarmConcurrency = 8
)

// ErrUserNotFound is returned when the API does not know the user.
var ErrUserNotFound = errors.New("user not found")

// User is the subset of a chat user profile exposed for credits.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

// DisplayName returns the name shown for the user.
func (u *User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Resolver looks up users by credit id. Lookups are memoized in the cache
// store until the next data change flushes it.
type Resolver struct {
	APIURL string
	Token  string
	Client *http.Client
	Store  cache.Store
}

// NewResolver creates a Resolver using the bot token for authentication.
func NewResolver(apiURL, token string, store cache.Store) *Resolver {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Resolver{
		APIURL: strings.TrimSuffix(apiURL, "/"),
		Token:  token,
		Client: &http.Client{Timeout: 10 * time.Second},
		Store:  store,
	}
}

// IsUserID reports whether creditID is a numeric user id that can be
// resolved. Other credit ids are free-form names.
func IsUserID(creditID string) bool {
	_, err := strconv.ParseUint(creditID, 10, 64)
	return err == nil
}

// Lookup returns the user with the given id. Unknown users are reported as
// ErrUserNotFound and are not cached.
func (r *Resolver) Lookup(ctx context.Context, id string) (*User, error) {
	if !IsUserID(id) {
		return nil, ErrUserNotFound
	}
	result, err := cache.CachedMayFail(ctx, r.Store, keyPrefix+id, func(ctx context.Context) (cache.Behaviour[*User], error) {
		user, err := r.fetch(ctx, id)
		if errors.Is(err, ErrUserNotFound) {
			return cache.Uncacheable[*User](nil), nil
		}
		if err != nil {
			return cache.Behaviour[*User]{}, err
		}
		return cache.Cacheable(user), nil
	})
	if err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, result.Err
	}
	if result.Value == nil {
		return nil, ErrUserNotFound
	}
	return result.Value, nil
}

func (r *Resolver) fetch(ctx context.Context, id string) (*User, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, r.APIURL+"/users/"+id, nil)
	if err != nil {
		return nil, err
	}
	if r.Token != "" {
		request.Header.Set("Authorization", "Bot "+r.Token)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logrus.WithError(err).Debug("error closing response body")
		}
	}(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("user %s: unexpected status %d", id, resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &user, nil
}

// PreWarm resolves every numeric credit id of snapshot so later lookups are
// served from the cache. Individual lookup failures are logged; only a
// failing cache store aborts the pre-warm.
func (r *Resolver) PreWarm(ctx context.Context, snapshot *model.Snapshot) error {
	log := logrus.WithField("component", "credits")
	log.Debug("pre-warming user list")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prewarmConcurrency)
	for _, credit := range snapshot.CreditNames {
		id := credit.CreditID
		if !IsUserID(id) {
			continue
		}
		g.Go(func() error {
			_, err := r.Lookup(ctx, id)
			var storeErr *cache.StoreError
			switch {
			case err == nil, errors.Is(err, ErrUserNotFound):
				return nil
			case errors.As(err, &storeErr):
				return err
			default:
				log.WithError(err).WithField("credit_id", id).Warn("error pre-warming user")
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pre-warm users: %w", err)
	}
	log.Debug("done pre-warming user list")
	return nil
}
