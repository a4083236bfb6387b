package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/service"
)

type testServer struct {
	app      *fiber.App
	store    *memory.Store
	tokens   *auth.TokenManager
	employee domain.User
	agent    domain.User
	admin    domain.User
	dept     domain.Department
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	authService := service.NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost},
		service.AuthDependencies{UserRepo: store.Repos().Users})

	s := &testServer{
		store:    store,
		tokens:   authService.TokenManager(),
		employee: store.AddUser("Lucía", "lucia@example.com", domain.RoleEmployee),
		agent:    store.AddUser("Agent X", "agent@example.com", domain.RoleAgent),
		admin:    store.AddUser("Admin", "admin@example.com", domain.RoleAdministrator),
		dept:     store.AddDepartment("IT", ""),
	}
	s.app = NewApp(config.AppConfig{Name: "helpdesk-test", Version: "test"}, Dependencies{
		Store:      store,
		Dispatcher: events.NewInMemoryDispatcher(nil),
		Auth:       authService,
		Metrics:    observability.NewMetrics(),
	})
	return s
}

func (s *testServer) token(t *testing.T, u domain.User) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(u)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data object: %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (s *testServer) createTicket(t *testing.T, token string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/tickets", token, map[string]any{
		"title":         "Monitor no enciende",
		"description":   "No da imagen",
		"priority":      "medium",
		"department_id": s.dept.ID,
	})
	require.Equal(t, http.StatusCreated, status, body)
	return data(t, body)["id"].(string)
}

func TestLoginAndProfile(t *testing.T) {
	s := newTestServer(t)
	hash, err := auth.HashPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)
	user := &domain.User{Name: "Ana", Email: "ana@example.com", PasswordHash: hash, Role: domain.RoleEmployee, Active: true}
	require.NoError(t, s.store.Repos().Users.Create(context.Background(), user))

	status, body := s.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "ana@example.com", "password": "secret"})
	require.Equal(t, http.StatusOK, status, body)
	authBlock := data(t, body)["auth"].(map[string]any)
	token := authBlock["token"].(string)
	assert.NotContains(t, data(t, body)["user"], "password_hash")

	status, body = s.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ana", data(t, body)["name"])

	status, body = s.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "ana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestTicketsRequireAuthentication(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestCreateIgnoresClientSuppliedIdentity(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodPost, "/tickets", s.token(t, s.employee), map[string]any{
		"title":         "Impresora",
		"description":   "Atascada",
		"priority":      "LOW",
		"department_id": s.dept.ID,
		"created_by":    s.admin.ID,
		"status":        "CLOSED",
	})
	require.Equal(t, http.StatusCreated, status, body)
	ticket := data(t, body)
	assert.Equal(t, s.employee.ID, ticket["created_by"])
	assert.Equal(t, "OPEN", ticket["status"])
	assert.Nil(t, ticket["assigned_agent_id"])
}

func TestCreateValidationAndReferences(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, s.employee)

	status, body := s.do(t, http.MethodPost, "/tickets", token, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "description")

	status, body = s.do(t, http.MethodPost, "/tickets", token, map[string]any{
		"title": "x", "description": "y", "priority": "LOW", "department_id": "00000000-0000-4000-8000-000000000000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_REFERENCE", errorCode(body))
}

func TestPatchLifecycle(t *testing.T) {
	s := newTestServer(t)
	employee := s.token(t, s.employee)
	admin := s.token(t, s.admin)
	id := s.createTicket(t, employee)

	status, body := s.do(t, http.MethodPatch, "/tickets/"+id, employee, map[string]any{"description": "Probé otro cable"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Probé otro cable", data(t, body)["description"])

	status, body = s.do(t, http.MethodPatch, "/tickets/"+id, admin, map[string]any{
		"status": "IN_PROGRESS", "assigned_agent_id": s.agent.ID, "title": "ignored",
	})
	require.Equal(t, http.StatusOK, status, body)
	ticket := data(t, body)
	assert.Equal(t, "IN_PROGRESS", ticket["status"])
	assert.Equal(t, s.agent.ID, ticket["assigned_agent_id"])
	assert.Equal(t, "Monitor no enciende", ticket["title"])

	status, body = s.do(t, http.MethodGet, "/tickets/"+id, employee, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Agent X", data(t, body)["assigned_agent_name"])

	status, body = s.do(t, http.MethodPatch, "/tickets/"+id, employee, map[string]any{"description": "otra vez"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, http.MethodPatch, "/tickets/"+id, admin, map[string]any{"assigned_agent_id": nil})
	require.Equal(t, http.StatusOK, status, body)
	assert.Nil(t, data(t, body)["assigned_agent_id"])
}

func TestTransitionsEndpoint(t *testing.T) {
	s := newTestServer(t)
	agent := s.token(t, s.agent)
	id := s.createTicket(t, s.token(t, s.employee))

	status, body := s.do(t, http.MethodGet, "/tickets/"+id+"/transitions", agent, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"IN_PROGRESS"}, data(t, body)["available"])

	status, body = s.do(t, http.MethodPost, "/tickets/"+id+"/transitions", agent, map[string]any{"status": "CLOSED"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/tickets/"+id+"/transitions", agent, map[string]any{"status": "in_progress"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "IN_PROGRESS", data(t, body)["status"])
}

func TestCommentsAndCascadeDelete(t *testing.T) {
	s := newTestServer(t)
	employee := s.token(t, s.employee)
	admin := s.token(t, s.admin)
	id := s.createTicket(t, employee)

	status, body := s.do(t, http.MethodPost, "/tickets/"+id+"/comments", s.token(t, s.agent), map[string]any{"body": "Voy en camino"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Agent X", data(t, body)["author_name"])

	status, body = s.do(t, http.MethodPost, "/tickets/"+id+"/comments", employee, map[string]any{"body": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/tickets/"+id+"/comments", employee, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = s.do(t, http.MethodDelete, "/tickets/"+id, admin, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = s.do(t, http.MethodGet, "/tickets/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, _ = s.do(t, http.MethodGet, "/tickets/"+id+"/comments", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListTicketsQuery(t *testing.T) {
	s := newTestServer(t)
	employee := s.token(t, s.employee)
	s.createTicket(t, employee)
	s.createTicket(t, s.token(t, s.agent))

	status, body := s.do(t, http.MethodGet, "/tickets?mine=true", employee, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, http.MethodGet, "/tickets?status=OPEN,CLOSED&page=1&page_size=1", employee, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, float64(1), body["pagination"].(map[string]any)["page_size"])

	status, body = s.do(t, http.MethodGet, "/tickets?status=DONE", employee, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestListTicketsRejectsOutOfRangePage(t *testing.T) {
	s := newTestServer(t)
	employee := s.token(t, s.employee)

	for _, page := range []string{"9223372036854775807", "21474837", "0", "-3"} {
		t.Run(page, func(t *testing.T) {
			status, body := s.do(t, http.MethodGet, "/tickets?page="+page, employee, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
			details := body["error"].(map[string]any)["details"].(map[string]any)
			assert.Contains(t, details, "page")
		})
	}

	status, _ := s.do(t, http.MethodGet, "/tickets?page=21474836", employee, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestStaffOnlyEndpoints(t *testing.T) {
	s := newTestServer(t)
	employee := s.token(t, s.employee)
	agent := s.token(t, s.agent)
	s.createTicket(t, employee)

	status, _ := s.do(t, http.MethodGet, "/dashboard/stats", employee, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := s.do(t, http.MethodGet, "/dashboard/stats", agent, nil)
	require.Equal(t, http.StatusOK, status)
	stats := data(t, body)
	assert.Equal(t, float64(1), stats["total_tickets"])
	byStatus := stats["tickets_by_status"].(map[string]any)
	assert.Len(t, byStatus, 4)
	assert.Equal(t, float64(0), byStatus["PENDING"])

	status, body = s.do(t, http.MethodGet, "/users/agents", agent, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, http.MethodGet, "/departments", employee, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, body = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	requests := data(t, body)["requests"].([]any)
	assert.NotEmpty(t, requests)
}
