package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aegis-auth/aegis/internal/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeEnvelope(t *testing.T, body []byte) (bool, string, map[string]any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return env.Success, env.Message, data
}

func TestLoginValidationRunsBeforeCredentialCheck(t *testing.T) {
	svc, _, _ := newTestService(t)
	handler := NewHandler(testLogger(), svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"not-an-email"}`))
	handler.login(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	_, msg, data := decodeEnvelope(t, rec.Body.Bytes())
	if msg != "Validation failed" {
		t.Fatalf("message = %q", msg)
	}
	if _, ok := data["email"]; !ok {
		t.Fatalf("expected email field error, got %v", data)
	}
	if _, ok := data["password"]; !ok {
		t.Fatalf("expected password field error, got %v", data)
	}
}

func TestLoginInvalidCredentialsMessage(t *testing.T) {
	svc, _, _ := newTestService(t)
	handler := NewHandler(testLogger(), svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"nobody@example.com","password":"whatever"}`))
	handler.login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if _, msg, _ := decodeEnvelope(t, rec.Body.Bytes()); msg != "Invalid credentials" {
		t.Fatalf("message = %q", msg)
	}
}

func TestRegisterRequiresPasswordConfirmation(t *testing.T) {
	svc, _, _ := newTestService(t)
	handler := NewHandler(testLogger(), svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(
		`{"name":"Jane","email":"jane@example.com","password":"secret-password","password_confirmation":"different"}`))
	handler.register(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	_, _, data := decodeEnvelope(t, rec.Body.Bytes())
	if _, ok := data["password_confirmation"]; !ok {
		t.Fatalf("expected password_confirmation field error, got %v", data)
	}
}

func TestRegisterReturnsTokenPayload(t *testing.T) {
	svc, _, _ := newTestService(t)
	handler := NewHandler(testLogger(), svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(
		`{"name":"Jane","email":"jane@example.com","password":"secret-password","password_confirmation":"secret-password"}`))
	handler.register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	_, _, data := decodeEnvelope(t, rec.Body.Bytes())
	if data["token"] == "" {
		t.Fatal("expected token in payload")
	}
	if data["token_type"] != "Bearer" {
		t.Fatalf("token_type = %v", data["token_type"])
	}
	if _, ok := data["user"]; !ok {
		t.Fatal("expected user in payload")
	}
}

func TestRegisterAcceptsOptionalPhone(t *testing.T) {
	svc, store, _ := newTestService(t)
	handler := NewHandler(testLogger(), svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(
		`{"name":"Jane","email":"jane@example.com","phone":"+1234567890","password":"secret-password","password_confirmation":"secret-password"}`))
	handler.register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	_, _, data := decodeEnvelope(t, rec.Body.Bytes())
	user, ok := data["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user object, got %v", data["user"])
	}
	if user["phone"] != "+1234567890" {
		t.Fatalf("phone = %v, want +1234567890", user["phone"])
	}
	for _, stored := range store.users {
		if stored.Phone == nil || *stored.Phone != "+1234567890" {
			t.Fatalf("stored phone = %v", stored.Phone)
		}
	}
}

func TestRequireAuthMissingHeader(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	svc.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	svc.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthResolvesPrincipal(t *testing.T) {
	svc, _, _ := newTestService(t)
	result := registerAccount(t, svc)

	var captured *shared.Principal
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	svc.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if captured == nil {
		t.Fatal("expected principal in context")
	}
	if captured.ID != result.Profile.ID || captured.Email != "jane@example.com" || !captured.IsActive {
		t.Fatalf("principal = %+v", captured)
	}
	if captured.TokenID != result.Token {
		t.Fatalf("token id = %q, want issued token", captured.TokenID)
	}
}

func TestRequireAuthDeactivatedAccount(t *testing.T) {
	svc, store, _ := newTestService(t)
	result := registerAccount(t, svc)

	user := store.users[result.Profile.ID]
	user.IsActive = false
	store.users[user.ID] = user

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	svc.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if _, msg, _ := decodeEnvelope(t, rec.Body.Bytes()); msg != "Account is deactivated" {
		t.Fatalf("message = %q", msg)
	}
}

func TestRequireAuthDeletedAccount(t *testing.T) {
	svc, store, _ := newTestService(t)
	result := registerAccount(t, svc)
	if err := store.DeleteUser(context.Background(), result.Profile.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	svc.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
