package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoapp/internal/auth"
	"todoapp/internal/mailer"
	"todoapp/internal/storage"
	"todoapp/internal/todo"
	logx "todoapp/pkg/logx"
)

type captureMailer struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (c *captureMailer) Send(_ context.Context, m mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

type fixture struct {
	store storage.Store
	auth  *auth.Service
	api   *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	as := auth.New(auth.Config{
		Secret:     []byte("test-secret"),
		BcryptCost: 4,
		TestUser:   auth.TestUser{Email: "test@example.com", Password: "password123"},
	}, store, &captureMailer{}, nil, logx.Nop())
	ts := todo.New(store, nil, logx.Nop())
	return &fixture{
		store: store,
		auth:  as,
		api:   New(cfg, Deps{Auth: as, Todos: ts}, logx.Nop()),
	}
}

type result struct {
	Status int
	Header http.Header
	Body   map[string]any
	Raw    []byte
}

func (f *fixture) do(t *testing.T, method, path, body, token string) result {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)

	res := result{Status: rec.Code, Header: rec.Header(), Raw: rec.Body.Bytes()}
	if bytes.HasPrefix(bytes.TrimSpace(res.Raw), []byte("{")) {
		require.NoError(t, json.Unmarshal(res.Raw, &res.Body))
	}
	return res
}

// signup registers and verifies an account and returns its token.
func (f *fixture) signup(t *testing.T, email string) string {
	t.Helper()
	res := f.do(t, http.MethodPost, "/api/auth/register",
		`{"name":"Ada","email":"`+email+`","password":"secret1","confirmPassword":"secret1"}`, "")
	require.Equal(t, http.StatusCreated, res.Status, string(res.Raw))
	id, _ := res.Body["userId"].(string)
	require.NotEmpty(t, id)

	code, err := f.store.GetCode(context.Background(), id)
	require.NoError(t, err)

	res = f.do(t, http.MethodPost, "/api/auth/verify", `{"email":"`+email+`","code":"`+code.Code+`"}`, "")
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, "Email verified successfully", res.Body["message"])
	tok, _ := res.Body["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func TestAccountFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	tok := f.signup(t, "ada@example.com")

	res := f.do(t, http.MethodGet, "/api/auth/profile", "", tok)
	require.Equal(t, http.StatusOK, res.Status)
	user := res.Body["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.NotContains(t, user, "passwordHash")

	res = f.do(t, http.MethodPost, "/api/auth/login", `{"email":"ADA@example.com","password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "Login successful", res.Body["message"])

	res = f.do(t, http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"nope"}`, "")
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Invalid email or password", res.Body["error"])

	res = f.do(t, http.MethodPost, "/api/auth/register", `{"name":"Ada","email":"ada@example.com","password":"secret1"}`, "")
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.NotEmpty(t, res.Body["error"])
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	tests := []struct {
		name   string
		token  string
		status int
		msg    string
	}{
		{"missing", "", http.StatusUnauthorized, "Access token required"},
		{"garbage", "not-a-jwt", http.StatusForbidden, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.do(t, http.MethodGet, "/api/todos", "", tt.token)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.msg, res.Body["error"])
		})
	}
}

func TestTodoCRUD(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	tok := f.signup(t, "ada@example.com")
	other := f.signup(t, "bob@example.com")

	res := f.do(t, http.MethodGet, "/api/todos", "", tok)
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, "[]", string(res.Raw))

	res = f.do(t, http.MethodPost, "/api/todos", `{"text":"   "}`, tok)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Todo text is required", res.Body["error"])

	res = f.do(t, http.MethodPost, "/api/todos", `{"text":"  buy milk "}`, tok)
	require.Equal(t, http.StatusCreated, res.Status)
	assert.Equal(t, "buy milk", res.Body["text"])
	assert.Equal(t, false, res.Body["completed"])
	id := res.Body["id"].(string)

	res = f.do(t, http.MethodPut, "/api/todos/"+id, `{"completed":true}`, tok)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, true, res.Body["completed"])

	// Another user cannot see or touch it.
	res = f.do(t, http.MethodPut, "/api/todos/"+id, `{"completed":false}`, other)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Todo not found", res.Body["error"])

	res = f.do(t, http.MethodDelete, "/api/todos/"+id, "", tok)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "Todo deleted successfully", res.Body["message"])

	res = f.do(t, http.MethodDelete, "/api/todos/"+id, "", tok)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	tests := []struct {
		name   string
		body   string
		status int
		check  func(t *testing.T, res result)
	}{
		{
			name:   "packs by priority",
			body:   `{"start":"09:00","end":"12:00","tasks":[{"name":"A","duration":"30","priority":1},{"name":"B","duration":60,"priority":"3"},{"name":"","duration":"10"}]}`,
			status: http.StatusOK,
			check: func(t *testing.T, res result) {
				var out struct {
					Schedule []struct {
						Name  string `json:"name"`
						Start string `json:"start"`
						End   string `json:"end"`
					} `json:"schedule"`
				}
				require.NoError(t, json.Unmarshal(res.Raw, &out))
				require.Len(t, out.Schedule, 2)
				assert.Equal(t, "B", out.Schedule[0].Name)
				assert.Equal(t, "09:00", out.Schedule[0].Start)
				assert.Equal(t, "10:00", out.Schedule[0].End)
				assert.Equal(t, "A", out.Schedule[1].Name)
				assert.Equal(t, "10:30", out.Schedule[1].End)
			},
		},
		{
			name:   "invalid window",
			body:   `{"start":"12:00","end":"09:00","tasks":[{"name":"A","duration":"30","priority":1}]}`,
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, res result) {
				assert.Equal(t, "End time must be after start time.", res.Body["error"])
			},
		},
		{
			name:   "window unset",
			body:   `{"tasks":[{"name":"A","duration":"30"}]}`,
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, res result) {
				assert.Equal(t, "Please set the available time window.", res.Body["error"])
			},
		},
		{
			name:   "deadline unmet",
			body:   `{"start":"09:00","end":"12:00","tasks":[{"name":"A","duration":"90","deadline":"2026-03-01T10:00","priority":2}]}`,
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, res result) {
				assert.Equal(t, `Task "A" cannot be scheduled before its deadline.`, res.Body["error"])
			},
		},
		{
			name:   "wrong shape",
			body:   `{"start":"09:00","end":"12:00","tasks":"A"}`,
			status: http.StatusBadRequest,
			check: func(t *testing.T, res result) {
				assert.Equal(t, msgBadBody, res.Body["error"])
				assert.NotEmpty(t, res.Body["details"])
			},
		},
		{
			name:   "not json",
			body:   `tasks=1`,
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.do(t, http.MethodPost, "/api/schedule", tt.body, "")
			require.Equal(t, tt.status, res.Status, string(res.Raw))
			if tt.check != nil {
				tt.check(t, res)
			}
		})
	}
}

func TestDevEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	res := f.do(t, http.MethodPost, "/api/dev/create-test-user", "", "")
	assert.Equal(t, http.StatusNotFound, res.Status)

	f.api.Reconfigure(context.Background(), Config{DevEndpoints: true})

	res = f.do(t, http.MethodPost, "/api/dev/create-test-user", "", "")
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, "Test user created successfully", res.Body["message"])
	assert.Equal(t, "test@example.com", res.Body["email"])

	// Test users are verified and can log in right away.
	res = f.do(t, http.MethodPost, "/api/auth/login", `{"email":"test@example.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestCORS(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	req := httptest.NewRequest(http.MethodOptions, "/api/todos", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	f = newFixture(t, Config{CORSOrigins: []string{"https://app.example.com"}})
	res := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	f.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{MaxBodyBytes: 64})
	body := `{"start":"09:00","end":"12:00","tasks":[{"name":"` + strings.Repeat("x", 200) + `","duration":"30"}]}`
	res := f.do(t, http.MethodPost, "/api/schedule", body, "")
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.api.deps.Health = func(context.Context) map[string]any { return map[string]any{"storage": "memory"} }

	res := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "ok", res.Body["status"])
	assert.Equal(t, "memory", res.Body["storage"])

	res = f.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestPprofMount(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Addr: "127.0.0.1:0", Pprof: PprofConfig{Enabled: true, Token: "s3cret"}})
	res := f.do(t, http.MethodGet, "/debug/pprof/", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	res = f.do(t, http.MethodGet, "/debug/pprof/?token=s3cret", "", "")
	assert.Equal(t, http.StatusOK, res.Status)
	res = f.do(t, http.MethodGet, "/debug/pprof/cmdline", "", "s3cret")
	assert.Equal(t, http.StatusOK, res.Status)

	// Public bind without a token: not mounted.
	f = newFixture(t, Config{Addr: ":5000", Pprof: PprofConfig{Enabled: true}})
	res = f.do(t, http.MethodGet, "/debug/pprof/", "", "")
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":            "/debug/pprof/",
		"debug":       "/debug/",
		"/x/pprof":    "/x/pprof/",
		" /x/pprof/ ": "/x/pprof/",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePrefix(in), in)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:5000", true},
		{"[::1]:5000", true},
		{":5000", false},
		{"0.0.0.0:5000", false},
		{"example.com:80", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLoopbackAddr(tt.addr), tt.addr)
	}
}

func TestServeLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Addr: "127.0.0.1:0"})
	ctx := context.Background()

	f.api.Start(ctx)
	require.Eventually(t, func() bool { return f.api.Addr() != "" }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + f.api.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	f.api.Stop(stopCtx)
	assert.Empty(t, f.api.Addr())
	assert.Nil(t, f.api.Supervisor())
}
