package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdmin_SystemInfo(t *testing.T) {
	srv := newTestServer(t)
	admin := registerUser(t, srv, "root", "root@example.com", "password123")
	registerUser(t, srv, "alice", "alice@example.com", "password123")

	w := doJSON(t, srv, "GET", "/api/v1/admin/system", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var info SystemInfoResponse
	decodeBody(t, w, &info)
	require.Equal(t, "test", info.Version)
	require.Positive(t, info.Host.CPUCount)
	require.Equal(t, int64(2), info.Users.Total)
	require.Equal(t, int64(2), info.Users.Active)
}

func TestAdmin_SystemInfoForbiddenForRegularUser(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "root", "root@example.com", "password123")
	user := registerUser(t, srv, "alice", "alice@example.com", "password123")

	w := doJSON(t, srv, "GET", "/api/v1/admin/system", user.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}
