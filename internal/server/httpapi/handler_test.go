package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
	"github.com/dmitrijs2005/vlesskeeper/internal/directory"
	"github.com/dmitrijs2005/vlesskeeper/internal/logging"
	"github.com/dmitrijs2005/vlesskeeper/internal/provisioning"
	"github.com/dmitrijs2005/vlesskeeper/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

const (
	adminID = int64(1)
	plainID = int64(111)
)

type fakeProvisioner struct {
	users map[string]directory.User

	addErr       error
	removeErr    error
	listErr      error
	reloadErr    error
	provisionErr error

	gotAdd struct {
		username   string
		externalID *int64
	}
	gotProvision struct {
		externalID int64
		preferred  string
	}
}

func newFake() *fakeProvisioner {
	ext := plainID
	return &fakeProvisioner{users: map[string]directory.User{
		"alice": {
			Username:      "alice",
			Identity:      "6f9619ff-8b86-4011-b42d-00c04fc964ff",
			ContactHandle: "alice@vpn.local",
			ExternalID:    &ext,
			Descriptor:    "vless://6f9619ff-8b86-4011-b42d-00c04fc964ff@203.0.113.7:443?x#alice",
			CreatedAt:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			Active:        true,
		},
	}}
}

func (f *fakeProvisioner) Add(ctx context.Context, username string, externalID *int64) (*provisioning.Result, error) {
	f.gotAdd.username = username
	f.gotAdd.externalID = externalID
	if f.addErr != nil {
		return nil, f.addErr
	}
	u := directory.User{Username: username, ExternalID: externalID, Active: true}
	f.users[username] = u
	return &provisioning.Result{User: u, Created: true, Reloaded: f.reloadErr == nil, ReloadErr: f.reloadErr}, nil
}

func (f *fakeProvisioner) Remove(ctx context.Context, username string) (*provisioning.RemoveResult, error) {
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	if _, ok := f.users[username]; !ok {
		return &provisioning.RemoveResult{}, nil
	}
	delete(f.users, username)
	return &provisioning.RemoveResult{Removed: true, Reloaded: f.reloadErr == nil, ReloadErr: f.reloadErr}, nil
}

func (f *fakeProvisioner) Get(ctx context.Context, username string) (*directory.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (f *fakeProvisioner) GetByExternalID(ctx context.Context, id int64) (*directory.User, error) {
	for _, u := range f.users {
		if u.HasExternalID(id) {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeProvisioner) List(ctx context.Context) ([]directory.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []directory.User{}
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeProvisioner) Descriptor(ctx context.Context, username string) (string, error) {
	u, err := f.Get(ctx, username)
	if err != nil {
		return "", err
	}
	return u.Descriptor, nil
}

func (f *fakeProvisioner) Provision(ctx context.Context, externalID int64, preferred string) (*provisioning.Result, error) {
	f.gotProvision.externalID = externalID
	f.gotProvision.preferred = preferred
	if f.provisionErr != nil {
		return nil, f.provisionErr
	}
	if u, err := f.GetByExternalID(ctx, externalID); err == nil {
		return &provisioning.Result{User: *u}, nil
	}
	return f.Add(ctx, preferred, &externalID)
}

func newTestServer(t *testing.T, f *fakeProvisioner) *httptest.Server {
	t.Helper()
	h := NewHandler(f, secret, func(id int64) bool { return id == adminID }, logging.Discard())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func tokenFor(t *testing.T, id int64) string {
	t.Helper()
	tok, err := auth.GenerateToken(id, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, srv *httptest.Server, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthz_NoAuth(t *testing.T) {
	srv := newTestServer(t, newFake())

	resp, body := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, newFake())

	expired, err := auth.GenerateToken(plainID, secret, -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.GenerateToken(plainID, []byte("other"), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
		errMsg string
	}{
		{"missing", "", http.StatusUnauthorized, "unauthorized"},
		{"expired", expired, http.StatusUnauthorized, "token expired"},
		{"wrong secret", foreign, http.StatusUnauthorized, "invalid token"},
		{"valid", tokenFor(t, plainID), http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, http.MethodGet, "/api/v1/me", tt.token, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.errMsg != "" {
				assert.Equal(t, tt.errMsg, body["error"])
			}
		})
	}
}

func TestMe(t *testing.T) {
	srv := newTestServer(t, newFake())

	resp, body := do(t, srv, http.MethodGet, "/api/v1/me", tokenFor(t, plainID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@vpn.local", body["email"])
	assert.EqualValues(t, plainID, body["telegram_id"])
	assert.Equal(t, true, body["active"])
	assert.EqualValues(t, 0, body["traffic_used"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/me", tokenFor(t, 999), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", body["error"])
}

func TestMyConfig(t *testing.T) {
	t.Run("existing user", func(t *testing.T) {
		f := newFake()
		srv := newTestServer(t, f)

		resp, body := do(t, srv, http.MethodPost, "/api/v1/me/config", tokenFor(t, plainID), "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["created"])
		user := body["user"].(map[string]any)
		assert.Equal(t, "alice", user["username"])
		assert.Equal(t, plainID, f.gotProvision.externalID)
	})

	t.Run("new user with preferred name", func(t *testing.T) {
		f := newFake()
		srv := newTestServer(t, f)

		resp, body := do(t, srv, http.MethodPost, "/api/v1/me/config", tokenFor(t, 222), `{"username":"bob"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, true, body["created"])
		assert.Equal(t, true, body["reloaded"])
		assert.Equal(t, "bob", f.gotProvision.preferred)
	})

	t.Run("bad body", func(t *testing.T) {
		srv := newTestServer(t, newFake())
		resp, _ := do(t, srv, http.MethodPost, "/api/v1/me/config", tokenFor(t, 222), `{`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAdminRoutes_ForbiddenForPlainUsers(t *testing.T) {
	srv := newTestServer(t, newFake())
	tok := tokenFor(t, plainID)

	for _, rt := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/users"},
		{http.MethodPost, "/api/v1/users"},
		{http.MethodGet, "/api/v1/users/alice"},
		{http.MethodGet, "/api/v1/users/alice/link"},
		{http.MethodDelete, "/api/v1/users/alice"},
	} {
		resp, body := do(t, srv, rt.method, rt.path, tok, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, rt.path)
		assert.Equal(t, "forbidden", body["error"])
	}
}

func TestAddUser(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newFake()
		srv := newTestServer(t, f)

		resp, body := do(t, srv, http.MethodPost, "/api/v1/users", tokenFor(t, adminID), `{"username":"carol","external_id":333}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "carol", f.gotAdd.username)
		require.NotNil(t, f.gotAdd.externalID)
		assert.Equal(t, int64(333), *f.gotAdd.externalID)
		assert.Equal(t, true, body["reloaded"])
		_, hasReloadErr := body["reload_error"]
		assert.False(t, hasReloadErr)
	})

	t.Run("reload failure is reported, not fatal", func(t *testing.T) {
		f := newFake()
		f.reloadErr = errors.New("systemctl restart xray: exit status 1")
		srv := newTestServer(t, f)

		resp, body := do(t, srv, http.MethodPost, "/api/v1/users", tokenFor(t, adminID), `{"username":"carol"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, false, body["reloaded"])
		assert.Equal(t, "systemctl restart xray: exit status 1", body["reload_error"])
		assert.Nil(t, f.gotAdd.externalID)
	})

	errCases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"duplicate", common.ErrorAlreadyExists, http.StatusConflict, "already exists"},
		{"external id taken", common.ErrorExternalIDTaken, http.StatusConflict, "external id already linked"},
		{"invalid name", common.ErrorInvalidUsername, http.StatusBadRequest, "invalid username"},
		{"store failure", errors.New("write users db: disk full"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFake()
			f.addErr = tc.err
			srv := newTestServer(t, f)

			resp, body := do(t, srv, http.MethodPost, "/api/v1/users", tokenFor(t, adminID), `{"username":"x"}`)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.msg, body["error"])
		})
	}
}

func TestGetAndLink(t *testing.T) {
	srv := newTestServer(t, newFake())
	tok := tokenFor(t, adminID)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/users/alice", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "6f9619ff-8b86-4011-b42d-00c04fc964ff", body["uuid"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/users/alice/link", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "vless://6f9619ff-8b86-4011-b42d-00c04fc964ff@203.0.113.7:443?x#alice", body["link"])

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/users/nobody/link", tok, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListUsers(t *testing.T) {
	f := newFake()
	srv := newTestServer(t, f)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/users", tokenFor(t, adminID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["users"], 1)

	f.listErr = errors.New("boom")
	resp, _ = do(t, srv, http.MethodGet, "/api/v1/users", tokenFor(t, adminID), "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRemoveUser(t *testing.T) {
	f := newFake()
	srv := newTestServer(t, f)
	tok := tokenFor(t, adminID)

	resp, body := do(t, srv, http.MethodDelete, "/api/v1/users/alice", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["removed"])
	assert.Equal(t, true, body["reloaded"])

	resp, body = do(t, srv, http.MethodDelete, "/api/v1/users/alice", tok, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", body["error"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(errors.Join(errors.New("ctx"), common.ErrorAlreadyExists)))
	assert.Equal(t, http.StatusUnauthorized, statusFor(common.ErrTokenExpired))
	assert.Equal(t, http.StatusForbidden, statusFor(common.ErrorForbidden))
	assert.Equal(t, http.StatusInternalServerError, statusFor(common.ErrorMalformedConfig))
}
