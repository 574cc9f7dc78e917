package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sardine-ai/spritecollab-server/assets"
	"github.com/sardine-ai/spritecollab-server/collab"
	"github.com/sardine-ai/spritecollab-server/credits"
	"github.com/sardine-ai/spritecollab-server/model"
	"gopkg.in/yaml.v3"
)

// mockCollab is a thread-safe stand-in for collab.SpriteCollab
type mockCollab struct {
	mu           sync.Mutex
	data         *model.Snapshot
	state        collab.State
	refreshCount int
	refreshed    chan struct{}
}

func newMockCollab() *mockCollab {
	tracker := model.Tracker{
		25: {
			Name:           "Pikachu",
			SpriteComplete: model.PhaseFull,
			Subgroups: map[int]*model.Group{
				1: {Name: "Cosplay"},
			},
		},
	}
	return &mockCollab{
		data: model.NewSnapshot(
			model.SpriteConfig{PortraitSize: 40, Emotions: []string{"Normal", "Happy"}},
			tracker,
			model.CreditNames{
				{Name: "Audino", CreditID: "117", Contact: "https://example.com"},
				{Name: "Someone", CreditID: "Someone"},
			},
		),
	}
}

func (m *mockCollab) Data() *model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

func (m *mockCollab) State() collab.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockCollab) Status() collab.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return collab.Status{State: m.state.String(), LastSuccess: time.Unix(1700000000, 0)}
}

func (m *mockCollab) Refresh(context.Context) error {
	m.mu.Lock()
	m.refreshCount++
	ch := m.refreshed
	m.mu.Unlock()
	if ch != nil {
		ch <- struct{}{}
	}
	return nil
}

func (m *mockCollab) setState(state collab.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

type mockResolver struct {
	users map[string]*credits.User
	err   error
}

func (m *mockResolver) Lookup(_ context.Context, id string) (*credits.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	user, ok := m.users[id]
	if !ok {
		return nil, credits.ErrUserNotFound
	}
	return user, nil
}

func newTestServer(c Collab) *Server {
	return NewServer(context.Background(), c, assets.NewURLBuilder("https://sprites.example", "https://raw.example"))
}

func get(t *testing.T, handler http.Handler, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Result()
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("Failed to parse JSON response: %v (%s)", err, body)
	}
}

// TestServerHealthEndpoint tests the /health endpoint
func TestServerHealthEndpoint(t *testing.T) {
	server := newTestServer(newMockCollab())
	defer server.Stop()

	resp := get(t, server.CreateHandlers(), "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	var result map[string]interface{}
	decode(t, resp, &result)
	if result["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%v'", result["status"])
	}
}

// TestServerHealthEndpointUnhealthy tests /health and /ready without data
func TestServerHealthEndpointUnhealthy(t *testing.T) {
	server := newTestServer(&mockCollab{})
	defer server.Stop()
	handler := server.CreateHandlers()

	for _, endpoint := range []string{"/health", "/ready", "/data/config"} {
		resp := get(t, handler, endpoint)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s: Expected status 503, got %d", endpoint, resp.StatusCode)
		}
	}
}

// TestServerStatusEndpoint tests the /status endpoint
func TestServerStatusEndpoint(t *testing.T) {
	server := newTestServer(newMockCollab())
	defer server.Stop()

	resp := get(t, server.CreateHandlers(), "/status")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	var result map[string]interface{}
	decode(t, resp, &result)

	if result["healthy"] != true {
		t.Errorf("Expected healthy=true, got %v", result["healthy"])
	}
	if result["monsters"] != float64(1) {
		t.Errorf("Expected monsters=1, got %v", result["monsters"])
	}
	refresh, ok := result["refresh"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected refresh status in response")
	}
	if refresh["state"] != "ready" {
		t.Errorf("Expected state 'ready', got %v", refresh["state"])
	}
}

// TestServerRefreshEndpoint tests that POST /refresh starts a refresh
func TestServerRefreshEndpoint(t *testing.T) {
	c := newMockCollab()
	c.refreshed = make(chan struct{}, 1)
	server := newTestServer(c)
	defer server.Stop()
	handler := server.CreateHandlers()

	req := httptest.NewRequest("POST", "/refresh", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Result().StatusCode)
	}

	select {
	case <-c.refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not started")
	}

	c.setState(collab.Refreshing)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/refresh", nil))
	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("Expected status 409 while refreshing, got %d", w.Result().StatusCode)
	}
}

// TestServerDataEndpoints tests the snapshot views in both formats
func TestServerDataEndpoints(t *testing.T) {
	server := newTestServer(newMockCollab())
	defer server.Stop()
	handler := server.CreateHandlers()

	resp := get(t, handler, "/data/config")
	var config model.SpriteConfig
	decode(t, resp, &config)
	if config.PortraitSize != 40 {
		t.Errorf("Expected portrait_size 40, got %d", config.PortraitSize)
	}

	resp = get(t, handler, "/data/config?format=yaml")
	if ct := resp.Header.Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Expected yaml content type, got %s", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	var asYAML map[string]interface{}
	if err := yaml.Unmarshal(body, &asYAML); err != nil {
		t.Fatalf("Failed to parse YAML response: %v", err)
	}
	if asYAML["portrait_size"] != 40 {
		t.Errorf("Expected portrait_size 40 in yaml, got %v", asYAML["portrait_size"])
	}

	resp = get(t, handler, "/data/monsters")
	var ids []int
	decode(t, resp, &ids)
	if len(ids) != 1 || ids[0] != 25 {
		t.Errorf("Expected [25], got %v", ids)
	}

	resp = get(t, handler, "/data/monsters/25")
	var group model.Group
	decode(t, resp, &group)
	if group.Name != "Pikachu" || group.Subgroups[1].Name != "Cosplay" {
		t.Errorf("Unexpected group %+v", group)
	}

	if resp := get(t, handler, "/data/monsters/26"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown monster, got %d", resp.StatusCode)
	}
	if resp := get(t, handler, "/data/monsters/pika"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid id, got %d", resp.StatusCode)
	}
}

// TestServerCreditEndpoint tests credit lookups with and without a resolver
func TestServerCreditEndpoint(t *testing.T) {
	server := newTestServer(newMockCollab())
	server.Credits = &mockResolver{users: map[string]*credits.User{
		"117": {ID: "117", Username: "audino"},
	}}
	defer server.Stop()
	handler := server.CreateHandlers()

	var result map[string]interface{}
	decode(t, get(t, handler, "/credits/117"), &result)
	if result["name"] != "Audino" {
		t.Errorf("Expected name Audino, got %v", result["name"])
	}
	user, ok := result["user"].(map[string]interface{})
	if !ok || user["username"] != "audino" {
		t.Errorf("Expected resolved user, got %v", result["user"])
	}

	result = nil
	decode(t, get(t, handler, "/credits/Someone"), &result)
	if _, ok := result["user"]; ok {
		t.Errorf("Expected no user for non-numeric credit id, got %v", result["user"])
	}

	if resp := get(t, handler, "/credits/999"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown credit, got %d", resp.StatusCode)
	}

	server.Credits = &mockResolver{err: errors.New("api down")}
	if resp := get(t, handler, "/credits/117"); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 when the resolver fails, got %d", resp.StatusCode)
	}
}

// TestServerAssetEndpoint tests asset path resolution against the tracker
func TestServerAssetEndpoint(t *testing.T) {
	server := newTestServer(newMockCollab())
	defer server.Stop()
	handler := server.CreateHandlers()

	resp := get(t, handler, "/assets/0025/0001/portrait_sheet.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var result assetResponse
	decode(t, resp, &result)
	if result.URL != "https://sprites.example/assets/0025/0001/portrait_sheet.png" {
		t.Errorf("Unexpected url %s", result.URL)
	}
	if result.Kind != "portrait_sheet" || result.MonsterID != 25 || len(result.FormPath) != 1 {
		t.Errorf("Unexpected asset %+v", result)
	}

	for _, path := range []string{
		"/assets/0025/0002/portrait_sheet.png",
		"/assets/0026/sprites.zip",
		"/assets/0025/Normal.png",
	} {
		if resp := get(t, handler, path); resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: Expected 404, got %d", path, resp.StatusCode)
		}
	}
}

// TestServerMethodNotAllowed tests that unsupported methods are rejected
func TestServerMethodNotAllowed(t *testing.T) {
	server := newTestServer(newMockCollab())
	defer server.Stop()
	handler := server.CreateHandlers()

	methods := []string{"POST", "PUT", "DELETE", "PATCH"}
	endpoints := []string{"/health", "/ready", "/status", "/data/config"}

	for _, method := range methods {
		for _, endpoint := range endpoints {
			req := httptest.NewRequest(method, endpoint, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusMethodNotAllowed {
				t.Errorf("%s %s: Expected status 405, got %d", method, endpoint, w.Result().StatusCode)
			}
		}
	}
}

// TestServerAuthMiddleware tests the authentication middleware
func TestServerAuthMiddleware(t *testing.T) {
	server := newTestServer(newMockCollab())
	server.AuthKey = "secret-key"
	defer server.Stop()

	handler := Auth(server.CreateHandlers(), server.AuthKey)

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"no key", "/data/config", "", http.StatusUnauthorized},
		{"wrong key", "/data/config", "wrong-key", http.StatusUnauthorized},
		{"correct key", "/data/config", "secret-key", http.StatusOK},
		{"health bypasses auth", "/health", "", http.StatusOK},
		{"ready bypasses auth", "/ready", "", http.StatusOK},
		{"status bypasses auth", "/status", "", http.StatusOK},
		{"metrics bypass auth", "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-KEY", tt.key)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Result().StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Result().StatusCode)
			}
		})
	}
}

// TestServerHEADRequests tests that HEAD requests work for read endpoints
func TestServerHEADRequests(t *testing.T) {
	server := newTestServer(newMockCollab())
	defer server.Stop()
	handler := server.CreateHandlers()

	for _, endpoint := range []string{"/health", "/ready", "/status", "/data/credits"} {
		req := httptest.NewRequest("HEAD", endpoint, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("HEAD %s: Expected 200, got %d", endpoint, w.Result().StatusCode)
		}
	}
}

// TestServerConcurrentHTTPRequests tests concurrent HTTP requests
func TestServerConcurrentHTTPRequests(t *testing.T) {
	server := newTestServer(newMockCollab())
	defer server.Stop()
	handler := server.CreateHandlers()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, endpoint := range []string{"/health", "/status", "/data/credits", "/assets/0025/sprites.zip"} {
				resp := get(t, handler, endpoint)
				if resp.StatusCode != http.StatusOK {
					t.Errorf("%s: Expected 200, got %d", endpoint, resp.StatusCode)
				}
			}
		}()
	}
	wg.Wait()
}

func TestServerStartReturnsError(t *testing.T) {
	server := newTestServer(newMockCollab())
	defer server.Stop()

	err := server.Start("invalid-address:99999999")
	if err == nil {
		t.Error("Expected error for invalid address")
	}
}

// TestServerShutdown tests graceful shutdown
func TestServerShutdown(t *testing.T) {
	server := newTestServer(newMockCollab())
	server.AuthKey = "secret-key"
	defer server.Stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start("127.0.0.1:0")
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	if err := server.Shutdown(); err != nil {
		t.Errorf("Expected no error on shutdown, got: %v", err)
	}
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Expected Start to return nil after shutdown, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Start did not return after shutdown")
	}
}

func TestToYAML(t *testing.T) {
	out, err := toYAML(model.CreditName{Name: "Audino", CreditID: "117"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "credit_id: \"117\"") {
		t.Errorf("Expected JSON field names in yaml, got %s", out)
	}
}
