package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"fitapp.dev/internal/auth"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	clock   *testClock
	store   *auth.MemoryStore
	svc     *auth.Service
}

func newTestAPI(t *testing.T, opts ...Option) *apiClient {
	t.Helper()
	return newTestAPIWithSecrets(t, "access-test-secret", "refresh-test-secret", opts...)
}

func newTestAPIWithSecrets(t *testing.T, accessSecret, refreshSecret string, opts ...Option) *apiClient {
	t.Helper()

	clock := &testClock{now: time.Unix(1_760_000_000, 0).UTC()}
	store := auth.NewMemoryStore()
	issuer := auth.NewTokenIssuer(accessSecret, refreshSecret, auth.WithClock(clock.Now))
	svc := auth.NewService(store, issuer, auth.WithLogger(zap.NewNop()))

	opts = append([]Option{WithRateLimit(100, 100), WithLogger(zap.NewNop())}, opts...)
	api := New(ReadyProbe{}, "test", svc, opts...)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		clock:   clock,
		store:   store,
		svc:     svc,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string, cookies ...*http.Cookie) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, cookies ...*http.Cookie) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, nil, cookies...)
}

func (c *apiClient) getBearer(path, token string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + token})
}

func (c *apiClient) register(username, password string) {
	c.t.Helper()
	resp := c.post("/register", map[string]string{"username": username, "password": password})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: unexpected status %d", username, resp.StatusCode)
	}
}

func (c *apiClient) login(username, password string) (string, *http.Cookie) {
	c.t.Helper()
	resp := c.post("/auth", map[string]string{"username": username, "password": password})
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.t.Fatalf("login %s: unexpected status %d", username, resp.StatusCode)
	}
	cookie := findCookie(resp, refreshCookieName)
	if cookie == nil {
		c.t.Fatalf("login %s: no refresh cookie", username)
	}
	payload := decode[accessTokenResponse](c.t, resp)
	if payload.AccessToken == "" {
		c.t.Fatalf("login %s: empty access token", username)
	}
	return payload.AccessToken, cookie
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("unexpected status: got %d want %d", resp.StatusCode, want)
	}
}

func TestSessionLifecycleScenario(t *testing.T) {
	c := newTestAPI(t)

	c.register("alice", "secret123")

	expectStatus(t, c.post("/auth", map[string]string{"username": "alice", "password": "wrong"}), http.StatusUnauthorized)

	access, cookie := c.login("alice", "secret123")
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteNoneMode {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}
	if cookie.MaxAge != int((24 * time.Hour).Seconds()) {
		t.Fatalf("unexpected cookie max-age: %d", cookie.MaxAge)
	}

	me := decode[meResponse](t, c.getBearer("/v1/me", access))
	if me.Username != "alice" || len(me.Roles) != 1 || me.Roles[0] != int(auth.RoleUser) {
		t.Fatalf("unexpected identity: %+v", me)
	}

	c.clock.Advance(31 * time.Second)
	expectStatus(t, c.getBearer("/v1/me", access), http.StatusForbidden)

	resp := c.do(http.MethodGet, "/refresh", nil, nil, cookie)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("refresh: unexpected status %d", resp.StatusCode)
	}
	renewed := decode[accessTokenResponse](t, resp)
	expectStatus(t, c.getBearer("/v1/me", renewed.AccessToken), http.StatusOK)

	resp = c.post("/logout", nil, cookie)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: unexpected status %d", resp.StatusCode)
	}
	cleared := findCookie(resp, refreshCookieName)
	resp.Body.Close()
	if cleared == nil || cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected cleared cookie, got %+v", cleared)
	}

	expectStatus(t, c.do(http.MethodGet, "/refresh", nil, nil, cookie), http.StatusForbidden)
}

func TestRegisterStatuses(t *testing.T) {
	c := newTestAPI(t)

	expectStatus(t, c.post("/register", map[string]string{"username": "bob", "password": "pw"}), http.StatusCreated)
	expectStatus(t, c.post("/register", map[string]string{"username": "bob", "password": "pw"}), http.StatusConflict)
	expectStatus(t, c.post("/register", map[string]string{"username": "carol"}), http.StatusBadRequest)
	expectStatus(t, c.post("/register", nil), http.StatusBadRequest)
	expectStatus(t, c.post("/register", map[string]any{"username": "dan", "password": "pw", "admin": true}), http.StatusBadRequest)

	resp := c.do(http.MethodGet, "/register", nil, nil)
	expectStatus(t, resp, http.StatusMethodNotAllowed)
}

func TestLegacyCredentialFields(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/register", map[string]string{"user": "erin", "pwd": "pw"})
	created := decode[userResponse](t, resp)
	if created.Username != "erin" || len(created.Roles) != 1 || created.Roles[0] != 2001 {
		t.Fatalf("unexpected register payload: %+v", created)
	}

	resp = c.post("/auth", map[string]string{"user": "erin", "pwd": "pw"})
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("login with legacy fields: %d", resp.StatusCode)
	}
	payload := decode[accessTokenResponse](t, resp)
	if payload.AccessToken == "" || len(payload.Roles) != 1 {
		t.Fatalf("unexpected login payload: %+v", payload)
	}
}

func TestLoginStatuses(t *testing.T) {
	c := newTestAPI(t)
	c.register("frank", "pw")

	expectStatus(t, c.post("/auth", map[string]string{"username": "frank"}), http.StatusBadRequest)
	expectStatus(t, c.post("/auth", map[string]string{"username": "nobody", "password": "pw"}), http.StatusUnauthorized)

	resp := c.post("/auth", map[string]string{"username": "frank", "password": "bad"})
	body := decode[map[string]any](t, resp)
	if rid, _ := body["request_id"].(string); body["error"] != "unauthorized" || rid == "" {
		t.Fatalf("unexpected error body: %v", body)
	}
	if findCookie(resp, refreshCookieName) != nil {
		t.Fatalf("failed login must not set a cookie")
	}
}

func TestMissingSecretsYieldServerError(t *testing.T) {
	c := newTestAPIWithSecrets(t, "", "")
	c.register("gina", "pw")

	expectStatus(t, c.post("/auth", map[string]string{"username": "gina", "password": "bad"}), http.StatusUnauthorized)

	resp := c.post("/auth", map[string]string{"username": "gina", "password": "pw"})
	body := decode[map[string]any](t, resp)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if body["error"] != "internal server error" {
		t.Fatalf("error details leaked: %v", body)
	}

	token := "r1"
	if _, err := c.store.SetRefreshToken(context.Background(), "gina", &token); err != nil {
		t.Fatalf("SetRefreshToken: %v", err)
	}
	expectStatus(t, c.do(http.MethodPost, "/refresh", nil, nil, &http.Cookie{Name: refreshCookieName, Value: token}), http.StatusInternalServerError)
	expectStatus(t, c.getBearer("/v1/me", "anything"), http.StatusInternalServerError)
}

func TestRefreshStatuses(t *testing.T) {
	c := newTestAPI(t)
	c.register("hank", "pw")

	expectStatus(t, c.do(http.MethodGet, "/refresh", nil, nil), http.StatusUnauthorized)
	expectStatus(t, c.do(http.MethodGet, "/refresh", nil, nil, &http.Cookie{Name: refreshCookieName, Value: "forged"}), http.StatusForbidden)

	_, first := c.login("hank", "pw")
	c.clock.Advance(time.Second)
	_, second := c.login("hank", "pw")

	expectStatus(t, c.do(http.MethodPost, "/refresh", nil, nil, first), http.StatusForbidden)
	expectStatus(t, c.do(http.MethodPost, "/refresh", nil, nil, second), http.StatusOK)

	c.clock.Advance(24 * time.Hour)
	expectStatus(t, c.do(http.MethodPost, "/refresh", nil, nil, second), http.StatusForbidden)
}

func TestRefreshPicksUpRoleChanges(t *testing.T) {
	c := newTestAPI(t)
	c.register("ivy", "pw")
	_, cookie := c.login("ivy", "pw")

	if _, err := c.svc.SetRoles(context.Background(), "ivy", auth.NewRoles(auth.RoleUser, auth.RoleEditor)); err != nil {
		t.Fatalf("SetRoles: %v", err)
	}

	resp := c.do(http.MethodGet, "/refresh", nil, nil, cookie)
	renewed := decode[accessTokenResponse](t, resp)
	me := decode[meResponse](t, c.getBearer("/v1/me", renewed.AccessToken))
	if len(me.Roles) != 2 || me.RoleNames[0] != "Editor" {
		t.Fatalf("refresh did not pick up new roles: %+v", me)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	c := newTestAPI(t)
	c.register("jack", "pw")
	_, cookie := c.login("jack", "pw")

	expectStatus(t, c.post("/logout", nil, cookie), http.StatusNoContent)
	expectStatus(t, c.post("/logout", nil, cookie), http.StatusNoContent)
	expectStatus(t, c.post("/logout", nil), http.StatusNoContent)

	rec, err := c.store.FindByUsername(context.Background(), "jack")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if rec.RefreshToken != "" {
		t.Fatalf("refresh slot not cleared")
	}
}

func TestAdminRoutes(t *testing.T) {
	c := newTestAPI(t)
	c.register("root", "pw")
	c.register("kate", "pw")
	if _, err := c.svc.SetRoles(context.Background(), "root", auth.NewRoles(auth.RoleAdmin)); err != nil {
		t.Fatalf("SetRoles: %v", err)
	}
	adminToken, _ := c.login("root", "pw")
	userToken, kateCookie := c.login("kate", "pw")
	admin := map[string]string{"Authorization": "Bearer " + adminToken}

	expectStatus(t, c.do(http.MethodPut, "/v1/admin/users/kate/roles", map[string]any{"roles": []int{5150}},
		map[string]string{"Authorization": "Bearer " + userToken}), http.StatusUnauthorized)
	expectStatus(t, c.do(http.MethodPut, "/v1/admin/users/kate/roles", map[string]any{"roles": []int{5150}}, nil), http.StatusUnauthorized)

	resp := c.do(http.MethodPut, "/v1/admin/users/kate/roles", map[string]any{"roles": []int{1984, 2001}}, admin)
	updated := decode[userResponse](t, resp)
	if resp.StatusCode != http.StatusOK || len(updated.Roles) != 2 {
		t.Fatalf("unexpected update: %d %+v", resp.StatusCode, updated)
	}

	expectStatus(t, c.do(http.MethodPut, "/v1/admin/users/kate/roles", map[string]any{"roles": []int{7}}, admin), http.StatusBadRequest)
	expectStatus(t, c.do(http.MethodPut, "/v1/admin/users/kate/roles", map[string]any{"roles": []int{}}, admin), http.StatusBadRequest)
	expectStatus(t, c.do(http.MethodPut, "/v1/admin/users/ghost/roles", map[string]any{"roles": []int{2001}}, admin), http.StatusNotFound)

	expectStatus(t, c.do(http.MethodDelete, "/v1/admin/users/kate/session", nil, admin), http.StatusNoContent)
	expectStatus(t, c.do(http.MethodGet, "/refresh", nil, nil, kateCookie), http.StatusForbidden)
	expectStatus(t, c.do(http.MethodDelete, "/v1/admin/users/ghost/session", nil, admin), http.StatusNotFound)
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	health := decode[map[string]any](t, c.do(http.MethodGet, "/healthz", nil, nil))
	if health["status"] != "ok" || health["version"] != "test" {
		t.Fatalf("unexpected health: %v", health)
	}
	ready := decode[map[string]any](t, c.do(http.MethodGet, "/readyz", nil, nil))
	if ready["status"] != "ready" {
		t.Fatalf("unexpected ready: %v", ready)
	}
	info := decode[map[string]any](t, c.do(http.MethodGet, "/v1/info", nil, nil))
	if info["name"] != serviceName {
		t.Fatalf("unexpected info: %v", info)
	}
	expectStatus(t, c.do(http.MethodGet, "/metrics", nil, nil), http.StatusOK)
}

func TestReadyReportsProbeFailure(t *testing.T) {
	svc := auth.NewService(auth.NewMemoryStore(), auth.NewTokenIssuer("a", "r"))
	api := New(failingReadiness{}, "test", svc, WithLogger(zap.NewNop()))

	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
