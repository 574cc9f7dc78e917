package credits

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sardine-ai/spritecollab-server/cache"
	"github.com/sardine-ai/spritecollab-server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests map[string]int
	auth     []string
	users    map[string]User
	broken   map[string]bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/users/")
	f.mu.Lock()
	f.requests[id]++
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	user, ok := f.users[id]
	broken := f.broken[id]
	f.mu.Unlock()

	switch {
	case broken:
		w.WriteHeader(http.StatusInternalServerError)
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	}
}

func (f *fakeAPI) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[id]
}

func setup(t *testing.T) (*Resolver, *fakeAPI, *miniredis.Miniredis) {
	t.Helper()
	api := &fakeAPI{
		requests: map[string]int{},
		users: map[string]User{
			"117": {ID: "117", Username: "audino", GlobalName: "Audino"},
			"200": {ID: "200", Username: "pikachu"},
		},
		broken: map[string]bool{"500": true},
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore(context.Background(), &cache.RedisConfig{Addr: mr.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewResolver(srv.URL+"/", "secret", store), api, mr
}

func TestIsUserID(t *testing.T) {
	assert.True(t, IsUserID("117"))
	assert.False(t, IsUserID("Audino"))
	assert.False(t, IsUserID(""))
	assert.False(t, IsUserID("-5"))
}

func TestLookupCachesFoundUsers(t *testing.T) {
	resolver, api, mr := setup(t)
	ctx := context.Background()

	user, err := resolver.Lookup(ctx, "117")
	require.NoError(t, err)
	assert.Equal(t, "Audino", user.DisplayName())

	user, err = resolver.Lookup(ctx, "117")
	require.NoError(t, err)
	assert.Equal(t, "audino", user.Username)
	assert.Equal(t, 1, api.count("117"))
	assert.True(t, mr.Exists("discord_user:117"))
	assert.Equal(t, "Bot secret", api.auth[0])
}

func TestLookupDoesNotCacheUnknownUsers(t *testing.T) {
	resolver, api, mr := setup(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := resolver.Lookup(ctx, "404")
		assert.ErrorIs(t, err, ErrUserNotFound)
	}
	assert.Equal(t, 2, api.count("404"))
	assert.False(t, mr.Exists("discord_user:404"))
}

func TestLookupNonNumericID(t *testing.T) {
	resolver, api, _ := setup(t)
	_, err := resolver.Lookup(context.Background(), "SomeArtist")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 0, api.count("SomeArtist"))
}

func TestLookupAPIError(t *testing.T) {
	resolver, _, mr := setup(t)
	_, err := resolver.Lookup(context.Background(), "500")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.False(t, mr.Exists("discord_user:500"))
}

func TestLookupStoreUnavailable(t *testing.T) {
	resolver, api, mr := setup(t)
	mr.Close()

	_, err := resolver.Lookup(context.Background(), "117")
	var storeErr *cache.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 0, api.count("117"))
}

func TestPreWarm(t *testing.T) {
	resolver, api, mr := setup(t)
	snapshot := model.NewSnapshot(model.SpriteConfig{}, model.Tracker{}, model.CreditNames{
		{Name: "Audino", CreditID: "117"},
		{Name: "Pikachu", CreditID: "200"},
		{Name: "Gone", CreditID: "404"},
		{Name: "Flaky", CreditID: "500"},
		{Name: "Someone", CreditID: "Someone"},
	})

	require.NoError(t, resolver.PreWarm(context.Background(), snapshot))
	assert.True(t, mr.Exists("discord_user:117"))
	assert.True(t, mr.Exists("discord_user:200"))
	assert.False(t, mr.Exists("discord_user:404"))
	assert.Equal(t, 0, api.count("Someone"))

	_, err := resolver.Lookup(context.Background(), "200")
	require.NoError(t, err)
	assert.Equal(t, 1, api.count("200"))
}

func TestPreWarmStoreUnavailable(t *testing.T) {
	resolver, _, mr := setup(t)
	mr.Close()
	snapshot := model.NewSnapshot(model.SpriteConfig{}, model.Tracker{}, model.CreditNames{{CreditID: "117"}})
	assert.Error(t, resolver.PreWarm(context.Background(), snapshot))
}
