package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"

	"todoapp/internal/auth"
	"todoapp/internal/schedule"
	"todoapp/internal/storage"
	"todoapp/internal/todo"
	logx "todoapp/pkg/logx"
)

// AuthService is the account API used by the handlers.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (string, error)
	Verify(ctx context.Context, email, code string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Authenticate(ctx context.Context, token string) (storage.User, error)
	Profile(ctx context.Context, userID string) (auth.PublicUser, error)
	CreateTestUser(ctx context.Context) (auth.TestUser, error)
}

// TodoService is the todo API used by the handlers.
type TodoService interface {
	List(ctx context.Context, userID string) ([]todo.Todo, error)
	Create(ctx context.Context, userID, text string) (todo.Todo, error)
	SetCompleted(ctx context.Context, userID, id string, completed bool) (todo.Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

// Deps are the services behind the API.
type Deps struct {
	Auth  AuthService
	Todos TodoService
	// Health adds fields to the /healthz body. Optional.
	Health func(ctx context.Context) map[string]any
}

func (s *Service) routes(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/verify", s.handleVerify)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/profile", s.requireAuth(s.handleProfile))

	mux.HandleFunc("GET /api/todos", s.requireAuth(s.handleListTodos))
	mux.HandleFunc("POST /api/todos", s.requireAuth(s.handleCreateTodo))
	mux.HandleFunc("PUT /api/todos/{id}", s.requireAuth(s.handleUpdateTodo))
	mux.HandleFunc("DELETE /api/todos/{id}", s.requireAuth(s.handleDeleteTodo))

	mux.HandleFunc("POST /api/schedule", s.handleSchedule)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if cfg.DevEndpoints {
		mux.HandleFunc("POST /api/dev/create-test-user", s.handleCreateTestUser)
	}
	if cfg.Pprof.Enabled {
		s.mountPprof(mux, cfg)
	}

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorMsg(w, http.StatusNotFound, "Not found")
	})

	log := s.logger()
	var h http.Handler = mux
	h = limitBody(cfg.MaxBodyBytes, h)
	h = cors(cfg.CORSOrigins, h)
	h = recoverer(log, h)
	h = observe(log, h)
	return h
}

type registerRequest struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	ConfirmPassword *string `json:"confirmPassword"`
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	id, err := s.deps.Auth.Register(r.Context(), auth.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Account created successfully. Please check your email for verification code.",
		"userId":  id,
	})
}

type sessionResponse struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    auth.PublicUser `json:"user"`
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string     `json:"email"`
		Code  flexString `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	sess, err := s.deps.Auth.Verify(r.Context(), req.Email, string(req.Code))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Message: "Email verified successfully", Token: sess.Token, User: sess.User})
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	sess, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Message: "Login successful", Token: sess.Token, User: sess.User})
}

func (s *Service) handleProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]auth.PublicUser{"user": auth.Public(userFrom(r.Context()))})
}

func (s *Service) handleListTodos(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Todos.List(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	t, err := s.deps.Todos.Create(r.Context(), userFrom(r.Context()).ID, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Service) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Completed bool `json:"completed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	t, err := s.deps.Todos.SetCompleted(r.Context(), userFrom(r.Context()).ID, r.PathValue("id"), req.Completed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Service) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Todos.Delete(r.Context(), userFrom(r.Context()).ID, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Todo deleted successfully"})
}

type scheduleTask struct {
	Name     string     `json:"name"`
	Duration flexString `json:"duration"`
	Deadline string     `json:"deadline"`
	Priority flexInt    `json:"priority"`
}

type scheduleRequest struct {
	Start string         `json:"start"`
	End   string         `json:"end"`
	Tasks []scheduleTask `json:"tasks"`
}

func (s *Service) handleSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	problems, err := validateShape(scheduleSchema, body)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	if len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msgBadBody, Details: problems})
		return
	}

	var req scheduleRequest
	if err := decodeJSON(requestWithBody(r, body), &req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, msgBadBody)
		return
	}
	in := make([]schedule.TaskInput, len(req.Tasks))
	for i, t := range req.Tasks {
		in[i] = schedule.TaskInput{
			Name:     t.Name,
			Duration: string(t.Duration),
			Deadline: t.Deadline,
			Priority: int(t.Priority),
		}
	}
	out, err := schedule.PlanRaw(in, req.Start, req.End)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]schedule.ScheduledTask{"schedule": out})
}

func requestWithBody(r *http.Request, body []byte) *http.Request {
	r2 := r.Clone(r.Context())
	r2.Body = io.NopCloser(strings.NewReader(string(body)))
	return r2
}

func (s *Service) handleCreateTestUser(w http.ResponseWriter, r *http.Request) {
	tu, err := s.deps.Auth.CreateTestUser(r.Context())
	if err != nil {
		s.logger().Error("create test user failed", logx.Err(err))
		writeErrorMsg(w, http.StatusInternalServerError, "Failed to create test user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Test user created successfully",
		"email":    tu.Email,
		"password": tu.Password,
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	if s.deps.Health != nil {
		for k, v := range s.deps.Health(r.Context()) {
			body[k] = v
		}
	}
	body["status"] = "ok"
	writeJSON(w, http.StatusOK, body)
}
