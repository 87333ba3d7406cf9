package v1handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"usermgmt/internal/api/handler/v1handler"
	"usermgmt/internal/users"
	mockusers "usermgmt/internal/users/mock"
	"usermgmt/pkg/storage/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func newAPIClient(t *testing.T, svc users.Service) *apiClient {
	t.Helper()

	priv, pubPEM := genRSAKeys(t)
	sec := newSecHandlerForTest(t, pubPEM)
	now := time.Now()

	return &apiClient{
		t:       t,
		handler: v1handler.NewRouter(v1handler.New(v1handler.Deps{Users: svc}), sec),
		token:   signJWTRS256(t, priv, uuid.NewString(), now, now.Add(time.Hour)),
	}
}

// do sends the request and decodes a JSON body into a generic map.
func (c *apiClient) do(method, path, body string) (int, map[string]any) {
	c.t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.Equal(c.t, "application/json", rec.Header().Get("Content-Type"))
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}

	return rec.Code, out
}

func listedEmails(t *testing.T, body map[string]any) []string {
	t.Helper()

	raw, ok := body["users"].([]any)
	require.True(t, ok, "users must be an array: %v", body)
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		out = append(out, u.(map[string]any)["email"].(string))
	}

	return out
}

func TestRouter_UserLifecycle(t *testing.T) {
	c := newAPIClient(t, users.New(memory.New(), users.Options{}))

	status, body := c.do(http.MethodPost, "/users",
		`{"email":"Jane@Example.com","firstName":"Jane","lastName":"Doe","extra":[1,2]}`)
	require.Equal(t, http.StatusCreated, status, body)
	require.Equal(t, "jane@example.com", body["email"])
	require.Equal(t, "Jane Doe", body["fullName"])
	require.Equal(t, "JD", body["initials"])
	require.Equal(t, true, body["active"])
	id := body["id"].(string)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	status, body = c.do(http.MethodPost, "/users", `{"email":"jane@example.com","firstName":"J","lastName":"D"}`)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "CONFLICT", body["code"])

	status, body = c.do(http.MethodGet, "/users/"+id, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, id, body["id"])

	status, body = c.do(http.MethodPut, "/users/"+id+"/profile",
		`{"email":"jane.smith@example.com","firstName":"Jane","lastName":"Smith"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "jane.smith@example.com", body["email"])
	require.Equal(t, "Smith", body["lastName"])

	status, body = c.do(http.MethodDelete, "/users/"+id, "")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "CONFLICT", body["code"])

	status, body = c.do(http.MethodPost, "/users/"+id+"/deactivate", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["active"])

	status, body = c.do(http.MethodGet, "/users/stats", "")
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["total"])
	require.EqualValues(t, 0, body["active"])
	require.EqualValues(t, 1, body["inactive"])

	status, body = c.do(http.MethodPost, "/users/"+id+"/activate", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["active"])

	status, _ = c.do(http.MethodPost, "/users/"+id+"/deactivate", "")
	require.Equal(t, http.StatusOK, status)

	status, body = c.do(http.MethodDelete, "/users/"+id, "")
	require.Equal(t, http.StatusNoContent, status)
	require.Nil(t, body)

	status, body = c.do(http.MethodGet, "/users/"+id, "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", body["code"])
	require.Equal(t, "user not found", body["message"])
}

func TestRouter_ListUsersFilters(t *testing.T) {
	c := newAPIClient(t, users.New(memory.New(), users.Options{}))

	for _, body := range []string{
		`{"email":"jane@example.com","firstName":"Jane","lastName":"Doe"}`,
		`{"email":"john@example.com","firstName":"John","lastName":"Doe"}`,
		`{"email":"ann@example.com","firstName":"Ann","lastName":"Lee"}`,
	} {
		status, res := c.do(http.MethodPost, "/users", body)
		require.Equal(t, http.StatusCreated, status, res)
		// keep creation order strictly increasing
		time.Sleep(2 * time.Millisecond)
	}
	status, john := c.do(http.MethodGet, "/users?email=john@example.com", "")
	require.Equal(t, http.StatusOK, status)
	johnID := john["users"].([]any)[0].(map[string]any)["id"].(string)
	status, _ = c.do(http.MethodPost, "/users/"+johnID+"/deactivate", "")
	require.Equal(t, http.StatusOK, status)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"jane@example.com", "john@example.com", "ann@example.com"}},
		{"?active=true", []string{"jane@example.com", "ann@example.com"}},
		{"?active=false", []string{"john@example.com"}},
		{"?name=Doe", []string{"jane@example.com", "john@example.com"}},
		{"?name=Doe&active=false", []string{"john@example.com"}},
		{"?name=doe", []string{}},
		{"?email=ANN@example.com", []string{"ann@example.com"}},
		{"?email=ann@example.com&active=false", []string{}},
		{"?email=nobody@example.com", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status, body := c.do(http.MethodGet, "/users"+tt.query, "")
			require.Equal(t, http.StatusOK, status, body)
			require.Equal(t, tt.want, listedEmails(t, body))
			require.EqualValues(t, len(tt.want), body["count"])
		})
	}

	status, body := c.do(http.MethodGet, "/users?active=maybe", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "BAD_REQUEST", body["code"])
}

func TestRouter_RequestValidation(t *testing.T) {
	c := newAPIClient(t, users.New(memory.New(), users.Options{}))

	tests := []struct {
		name    string
		body    string
		code    string
		message string
	}{
		{"empty body", "", "BAD_REQUEST", "request body is required"},
		{"malformed json", `{"email":`, "BAD_REQUEST", "invalid request body"},
		{"wrong type", `{"email":42}`, "BAD_REQUEST", "invalid request body"},
		{"missing fields", `{"email":"jane@example.com"}`, "BAD_REQUEST",
			"invalid request: firstName is required, lastName is required"},
		{"long email", `{"email":"` + strings.Repeat("a", 250) + `@b.co","firstName":"Jane","lastName":"Doe"}`,
			"BAD_REQUEST", "invalid request: email must be at most 254 characters long"},
		{"bad email", `{"email":"nope","firstName":"Jane","lastName":"Doe"}`, "INVALID_ARGUMENT", ""},
		{"blank name", `{"email":"jane@example.com","firstName":"  ","lastName":"Doe"}`, "INVALID_ARGUMENT", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := c.do(http.MethodPost, "/users", tt.body)
			require.Equal(t, http.StatusBadRequest, status)
			require.Equal(t, tt.code, body["code"])
			if tt.message != "" {
				require.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestRouter_EmailFormatIsOwnedByDomain(t *testing.T) {
	c := newAPIClient(t, users.New(memory.New(), users.Options{}))

	for _, email := range []string{".a@b.co", "a.@b.co", "a..b@b.co", "a@b-.co", "a@.b.co", "a@b..co"} {
		t.Run(email, func(t *testing.T) {
			status, body := c.do(http.MethodPost, "/users",
				`{"email":"`+email+`","firstName":"Jane","lastName":"Doe"}`)
			require.Equal(t, http.StatusCreated, status, body)
			require.Equal(t, email, body["email"])
		})
	}
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no service calls are expected
	c := newAPIClient(t, mockusers.NewMockService(ctrl))

	c.token = ""
	status, body := c.do(http.MethodGet, "/users", "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHORIZED", body["code"])
	require.Equal(t, "missing bearer token", body["message"])

	c.token = "garbage"
	status, body = c.do(http.MethodGet, "/users/stats", "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid token", body["message"])
}

func TestRouter_InternalErrorsAreHidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mockusers.NewMockService(ctrl)
	c := newAPIClient(t, svc)

	svc.EXPECT().Stats(gomock.Any()).Return(users.Stats{}, context.DeadlineExceeded)

	status, body := c.do(http.MethodGet, "/users/stats", "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "INTERNAL", body["code"])
	require.Equal(t, "internal error", body["message"])
}

func TestRouter_UnknownRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c := newAPIClient(t, mockusers.NewMockService(ctrl))

	status, body := c.do(http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", body["code"])
}
