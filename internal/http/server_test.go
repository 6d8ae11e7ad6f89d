package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/services"
	"fintrack/internal/storage"
)

const testSecret = "test-secret-0123456789abcdef"

type testServer struct {
	*httptest.Server
	app *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := services.NewRecordService(repo, nil)
	app := NewServer("127.0.0.1:0", svc, repo, testSecret, time.Hour)

	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(app.limiter.Stop)

	return &testServer{Server: ts, app: app}
}

// do issues a JSON request, with a Bearer token when token is non-empty.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// registerAndLogin creates a user and returns a valid token.
func (ts *testServer) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "tester",
		"email":    email,
		"password": "supersecret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": "supersecret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	login := decodeBody[loginResponse](t, resp)
	if login.Token == "" {
		t.Fatal("empty token")
	}
	return login.Token
}

func (ts *testServer) createRecord(t *testing.T, token, collection, title, amount, category, date string) recordResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/"+collection, token, map[string]any{
		"title":    title,
		"amount":   amount,
		"category": category,
		"date":     date,
	})
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("create %s status = %d, body %s", collection, resp.StatusCode, body)
	}
	return decodeBody[recordResponse](t, resp)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, "/readyz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d", resp.StatusCode)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":  "alice",
		"email":     "alice@example.com",
		"password":  "supersecret",
		"full_name": "Alice Smith",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	user := decodeBody[userResponse](t, resp)
	if user.ID == 0 || user.Email != "alice@example.com" || user.FullName != "Alice Smith" {
		t.Errorf("user = %+v", user)
	}

	// Duplicate email, case-insensitive.
	resp = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "other",
		"email":    "Alice@Example.com",
		"password": "supersecret",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrongpassword",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "supersecret",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown email status = %d, want 401", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "supersecret",
	})
	login := decodeBody[loginResponse](t, resp)

	resp = ts.do(t, http.MethodGet, "/api/auth/profile", login.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status = %d", resp.StatusCode)
	}
	profile := decodeBody[userResponse](t, resp)
	if profile.ID != user.ID {
		t.Errorf("profile id = %d, want %d", profile.ID, user.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing username", map[string]string{"email": "a@b.com", "password": "supersecret"}, http.StatusUnprocessableEntity},
		{"bad email", map[string]string{"username": "a", "email": "not-an-email", "password": "supersecret"}, http.StatusUnprocessableEntity},
		{"short password", map[string]string{"username": "a", "email": "a@b.com", "password": "short"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/api/auth/register", "", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	paths := []string{
		"/api/auth/profile",
		"/api/expenses",
		"/api/incomes",
		"/api/transactions",
		"/api/transactions/balance",
	}
	for _, path := range paths {
		resp := ts.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", path, resp.StatusCode)
		}
	}

	resp := ts.do(t, http.MethodGet, "/api/expenses", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", resp.StatusCode)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	ts := newTestServer(t)

	var last int
	for i := 0; i < 130; i++ {
		resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
		last = resp.StatusCode
		io.Copy(io.Discard, resp.Body)
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", last)
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func daysAgo(n int) string {
	return time.Now().UTC().AddDate(0, 0, -n).Format("2006-01-02")
}
