package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sardine-ai/spritecollab-server/model"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when the server does not know the requested item.
var ErrNotFound = errors.New("not found")

// ErrRefreshInProgress is returned by TriggerRefresh when the server is
// already refreshing.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Client talks to a SpriteCollab server. It keeps a local copy of the sprite
// configuration and the credit names, refreshed every RefreshInterval.
type Client struct {
	BaseURL         *url.URL
	AuthKey         string
	RefreshInterval time.Duration
	HTTP            *http.Client

	mu           sync.RWMutex
	spriteConfig model.SpriteConfig
	creditNames  model.CreditNames

	cancel context.CancelFunc
}

// NewClient creates a new Client for the server at baseURL. It loads the
// data once before returning and then starts a background goroutine that
// reloads it every refreshInterval until Close is called.
func NewClient(ctx context.Context, baseURL, authKey string, refreshInterval time.Duration) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	client := &Client{
		BaseURL:         parsed,
		AuthKey:         authKey,
		RefreshInterval: refreshInterval,
		HTTP:            &http.Client{Timeout: 30 * time.Second},
		cancel:          cancel,
	}

	if err := client.Reload(ctx); err != nil {
		cancel()
		return nil, err
	}

	go refresh(ctx, client)
	return client, nil
}

// refresh periodically reloads the data until ctx is canceled.
func refresh(ctx context.Context, client *Client) {
	ticker := time.NewTicker(client.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := client.Reload(ctx); err != nil {
				logrus.WithError(err).Error("error reloading spritecollab data")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the background refresh goroutine.
func (c *Client) Close() {
	c.cancel()
}

// Reload fetches the sprite configuration and credit names from the server.
func (c *Client) Reload(ctx context.Context) error {
	var spriteConfig model.SpriteConfig
	if err := c.get(ctx, "/data/config", &spriteConfig); err != nil {
		return err
	}
	var creditNames model.CreditNames
	if err := c.get(ctx, "/data/credits", &creditNames); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.spriteConfig = spriteConfig
	c.creditNames = creditNames
	return nil
}

// SpriteConfig returns the locally held sprite configuration.
func (c *Client) SpriteConfig() model.SpriteConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spriteConfig
}

// CreditName returns the locally held credit name entry for creditID.
func (c *Client) CreditName(creditID string) (model.CreditName, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creditNames.Get(creditID)
}

// Monster fetches the tracker group of a monster, including its forms.
func (c *Client) Monster(ctx context.Context, id int) (*model.Group, error) {
	var group model.Group
	if err := c.get(ctx, "/data/monsters/"+strconv.Itoa(id), &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// TriggerRefresh asks the server to refresh its data from upstream.
func (c *Client) TriggerRefresh(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/refresh")
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)
	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrRefreshInProgress
	default:
		return fmt.Errorf("refresh: unexpected status %d", resp.StatusCode)
	}
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.BaseURL.String()+path, nil)
	if err != nil {
		return nil, err
	}
	if c.AuthKey != "" {
		request.Header.Set("X-API-KEY", c.AuthKey)
	}
	return c.HTTP.Do(request)
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		logrus.WithError(err).Debug("error closing response body")
	}
}
