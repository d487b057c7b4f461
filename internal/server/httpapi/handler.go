// Package httpapi exposes the provisioning operations to front ends over
// JSON/HTTP. Callers authenticate with a bearer token whose subject is their
// external id; managing other users requires that id to be an admin.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
	"github.com/dmitrijs2005/vlesskeeper/internal/directory"
	"github.com/dmitrijs2005/vlesskeeper/internal/logging"
	"github.com/dmitrijs2005/vlesskeeper/internal/provisioning"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Provisioner is the subset of provisioning.Service the API calls.
type Provisioner interface {
	Add(ctx context.Context, username string, externalID *int64) (*provisioning.Result, error)
	Remove(ctx context.Context, username string) (*provisioning.RemoveResult, error)
	Get(ctx context.Context, username string) (*directory.User, error)
	GetByExternalID(ctx context.Context, id int64) (*directory.User, error)
	List(ctx context.Context) ([]directory.User, error)
	Descriptor(ctx context.Context, username string) (string, error)
	Provision(ctx context.Context, externalID int64, preferredUsername string) (*provisioning.Result, error)
}

type Handler struct {
	svc       Provisioner
	jwtSecret []byte
	isAdmin   func(id int64) bool
	logger    logging.Logger
}

func NewHandler(svc Provisioner, jwtSecret []byte, isAdmin func(id int64) bool, logger logging.Logger) *Handler {
	return &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
		isAdmin:   isAdmin,
		logger:    logger.With("module", "httpapi"),
	}
}

// Router returns the API routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/me", h.handleMe)
		r.Post("/me/config", h.handleMyConfig)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Get("/users", h.handleList)
			r.Post("/users", h.handleAdd)
			r.Get("/users/{username}", h.handleGet)
			r.Get("/users/{username}/link", h.handleLink)
			r.Delete("/users/{username}", h.handleRemove)
		})
	})

	return r
}

type userResponse struct {
	User        directory.User `json:"user"`
	Created     bool           `json:"created"`
	Reloaded    bool           `json:"reloaded"`
	ReloadError string         `json:"reload_error,omitempty"`
}

func newUserResponse(res *provisioning.Result) userResponse {
	out := userResponse{User: res.User, Created: res.Created, Reloaded: res.Reloaded}
	if res.ReloadErr != nil {
		out.ReloadError = res.ReloadErr.Error()
	}
	return out
}

type addRequest struct {
	Username   string `json:"username"`
	ExternalID *int64 `json:"external_id"`
}

type myConfigRequest struct {
	Username string `json:"username"`
}

type removeResponse struct {
	Removed     bool   `json:"removed"`
	Reloaded    bool   `json:"reloaded"`
	ReloadError string `json:"reload_error,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetByExternalID(r.Context(), callerID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleMyConfig returns the caller's user, creating it on first use. The
// optional body names the preferred username.
func (h *Handler) handleMyConfig(w http.ResponseWriter, r *http.Request) {
	var req myConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	res, err := h.svc.Provision(r.Context(), callerID(r.Context()), req.Username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, newUserResponse(res))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	res, err := h.svc.Add(r.Context(), req.Username, req.ExternalID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(res))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.Descriptor(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": link})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Remove(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !res.Removed {
		writeJSON(w, http.StatusNotFound, errorBody(common.ErrorNotFound.Error()))
		return
	}

	out := removeResponse{Removed: true, Reloaded: res.Reloaded}
	if res.ReloadErr != nil {
		out.ReloadError = res.ReloadErr.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// writeError maps err to a status code. Unexpected errors are logged and
// reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = common.ErrorInternal.Error()
	}
	writeJSON(w, status, errorBody(msg))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorAlreadyExists), errors.Is(err, common.ErrorExternalIDTaken):
		return http.StatusConflict
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if !strings.HasPrefix(h, common.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, common.BearerPrefix))
}
