package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client(), slog.Default())
}

func TestLoginReturnsToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/login_check", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	})

	tok, err := client.Login(context.Background(), "coach@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestLoginSurfacesServerDetailVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid credentials."}`))
	})

	_, err := client.Login(context.Background(), "coach@example.com", "wrong")
	require.Error(t, err)

	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, "Invalid credentials.", credErr.Detail)
	assert.Equal(t, "Invalid credentials.", credErr.Error())
}

func TestLoginNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	client := New(srv.URL, http.DefaultClient, slog.Default())

	_, err := client.Login(context.Background(), "u", "p")
	require.Error(t, err)
	assert.True(t, IsNetworkError(err), "want NetworkError, got %v", err)
}

func TestUserByIDUnwrapsArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/153", r.URL.Path)
		require.Equal(t, "Bearer tok-153", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":153,"nom":"Doe","prenom":"Jane","email":"jane@example.com"}]`))
	})

	profile, err := client.UserByID(context.Background(), 153, "tok-153")
	require.NoError(t, err)
	assert.Equal(t, 153, profile.ID)
	assert.Equal(t, "Doe", profile.Name)
	assert.Equal(t, "jane@example.com", profile.Email)
}

func TestUserByIDClassifiesStatuses(t *testing.T) {
	tests := []struct {
		want   error
		name   string
		body   string
		status int
	}{
		{name: "expired or invalid token", status: http.StatusUnauthorized, body: `{"detail":"Expired JWT Token"}`, want: ErrUnauthorized},
		{name: "unknown user", status: http.StatusNotFound, body: `{}`, want: ErrNotFound},
		{name: "empty result array", status: http.StatusOK, body: `[]`, want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.UserByID(context.Background(), 1, "tok")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUserByIDServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"boom"}`))
	})

	_, err := client.UserByID(context.Background(), 1, "tok")
	var srvErr *ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusInternalServerError, srvErr.Status)
	assert.Equal(t, "boom", srvErr.Detail)
}

func TestSessionsDecodesHydraEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/evenements", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"hydra:member": [
				{"id":1,"titre":"Go for beginners","createdat":"2024-01-02T00:00:00Z","starttime":"2024-02-01T09:00:00Z"},
				{"id":2,"titre":"Advanced Go","starttime":"2023-12-31T09:00:00Z"}
			]
		}`))
	})

	sessions, err := client.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "Go for beginners", sessions[0].Title)
	require.NotNil(t, sessions[0].CreatedAt)
	assert.Nil(t, sessions[1].CreatedAt)

	published, ok := sessions[1].PublishedAt()
	require.True(t, ok, "session with only starttime must still have a publish timestamp")
	assert.Equal(t, sessions[1].StartTime.UTC(), published.UTC())
}

func TestSessionsRetriesTransientFailures(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"hydra:member":[{"id":1,"titre":"Retry win","createdat":"2024-01-02T00:00:00Z"}]}`))
	})

	sessions, err := client.Sessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, sessions, 1)
}

func TestSessionsDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.Sessions(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSendContact(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contacts", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	})

	err := client.SendContact(context.Background(), &ContactMessage{
		Name:    "Jane",
		Email:   "jane@example.com",
		Subject: "Hello",
		Body:    "A question about sessions",
	})
	require.NoError(t, err)
}

func TestRequestPasswordReset(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reset-password/request", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.RequestPasswordReset(context.Background(), "jane@example.com"))
}

func TestErrorBodyFallbacks(t *testing.T) {
	assert.Equal(t, "from detail", decodeErrorBody([]byte(`{"detail":"from detail"}`)))
	assert.Equal(t, "from message", decodeErrorBody([]byte(`{"message":"from message"}`)))
	assert.Equal(t, "from hydra", decodeErrorBody([]byte(`{"hydra:description":"from hydra"}`)))
	assert.Equal(t, "", decodeErrorBody([]byte(`not json`)))
}

func TestClassify(t *testing.T) {
	assert.True(t, errors.Is(classify(http.StatusUnauthorized, nil), ErrUnauthorized))
	assert.True(t, errors.Is(classify(http.StatusNotFound, nil), ErrNotFound))

	var srvErr *ServerError
	assert.True(t, errors.As(classify(http.StatusTeapot, []byte(`{"detail":"odd"}`)), &srvErr))
}
