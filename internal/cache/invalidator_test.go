package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPInvalidatorPurgesUserPaths(t *testing.T) {
	var got PurgeRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	inv := New(srv.URL+"/", "secret", time.Second)
	require.NoError(t, inv.Invalidate(context.Background(), "pawel"))
	require.Equal(t, "pawel", got.UserID)
	require.Equal(t, []string{"/v1/users/pawel/score", "/v1/users/pawel/activities"}, got.Paths)
	require.Equal(t, "Bearer secret", auth)
}

func TestUserPathsEscapesIdentifiers(t *testing.T) {
	require.Equal(t, []string{"/v1/users/a%2Fb/score", "/v1/users/a%2Fb/activities"}, UserPaths("a/b"))
}

func TestHTTPInvalidatorReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "origin unreachable", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPInvalidator(srv.URL, "", time.Second).Invalidate(context.Background(), "pawel")

	var invErr *InvalidationError
	require.True(t, errors.As(err, &invErr))
	require.Equal(t, http.StatusBadGateway, invErr.Status)
	require.Equal(t, "origin unreachable", invErr.Detail)
	require.Contains(t, err.Error(), "pawel")
}

func TestNewWithoutEndpointIsNoop(t *testing.T) {
	inv := New("  ", "", time.Second)
	require.IsType(t, NoopInvalidator{}, inv)
	require.NoError(t, inv.Invalidate(context.Background(), "anyone"))
}
