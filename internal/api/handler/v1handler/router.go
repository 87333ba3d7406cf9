package v1handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"usermgmt/pkg/logger"
	"usermgmt/pkg/serrors"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type encoder interface {
	Encode(e *jx.Encoder)
}

type decoder interface {
	Decode(d *jx.Decoder) error
}

// router adapts the Handler operations to net/http.
type router struct {
	h   *Handler
	sec *SecHandler
}

// NewRouter returns the v1 API. Routes are relative to the mount point, so the
// caller strips the /v1 prefix. Every route requires a bearer token.
func NewRouter(h *Handler, sec *SecHandler) http.Handler {
	rt := &router{h: h, sec: sec}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /users", rt.auth(rt.registerUser))
	mux.HandleFunc("GET /users", rt.auth(rt.listUsers))
	mux.HandleFunc("GET /users/stats", rt.auth(rt.userStats))
	mux.HandleFunc("GET /users/{id}", rt.auth(rt.getUser))
	mux.HandleFunc("PUT /users/{id}/profile", rt.auth(rt.updateUserProfile))
	mux.HandleFunc("POST /users/{id}/activate", rt.auth(rt.activateUser))
	mux.HandleFunc("POST /users/{id}/deactivate", rt.auth(rt.deactivateUser))
	mux.HandleFunc("DELETE /users/{id}", rt.auth(rt.deleteUser))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		rt.writeError(r.Context(), w, serrors.With(serrors.ErrNotFound, "route not found"))
	})

	return mux
}

func (rt *router) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			rt.writeError(ctx, w, serrors.With(serrors.ErrUnauthorized, "missing bearer token"))

			return
		}

		ctx, err := rt.sec.HandleBearerAuth(ctx, strings.TrimSpace(token))
		if err != nil {
			rt.writeError(ctx, w, err)

			return
		}

		next(w, r.WithContext(ctx))
	}
}

func (rt *router) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body encoder) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	body.Encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		logger.Warn(ctx, "could not write response", zap.Error(err))
	}
}

func (rt *router) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	res := rt.h.NewError(ctx, err)
	rt.writeJSON(ctx, w, res.StatusCode, &res.Response)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target decoder) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return serrors.Wrap(serrors.ErrBadRequest, err, "could not read request body")
	}
	if len(data) == 0 {
		return serrors.With(serrors.ErrBadRequest, "request body is required")
	}

	if err := target.Decode(jx.DecodeBytes(data)); err != nil {
		return serrors.Wrap(serrors.ErrBadRequest, err, "invalid request body")
	}

	return nil
}

func userParams(r *http.Request) UserParams {
	return UserParams{ID: r.PathValue("id")}
}

func (rt *router) registerUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		rt.writeError(ctx, w, err)

		return
	}

	res, err := rt.h.RegisterUser(ctx, &req)
	if err != nil {
		rt.writeError(ctx, w, err)

		return
	}

	w.Header().Set("Location", "/v1/users/"+res.ID)
	rt.writeJSON(ctx, w, http.StatusCreated, res)
}

func (rt *router) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	params := ListUsersParams{
		Name:  query.Get("name"),
		Email: query.Get("email"),
	}
	if raw := query.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			rt.writeError(ctx, w, serrors.Wrap(serrors.ErrBadRequest, err, "active must be a boolean"))

			return
		}
		params.Active = &active
	}

	res, err := rt.h.ListUsers(ctx, params)
	if err != nil {
		rt.writeError(ctx, w, err)

		return
	}

	rt.writeJSON(ctx, w, http.StatusOK, res)
}

func (rt *router) userStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := rt.h.UserStats(ctx)
	if err != nil {
		rt.writeError(ctx, w, err)

		return
	}

	rt.writeJSON(ctx, w, http.StatusOK, res)
}

func (rt *router) getUser(w http.ResponseWriter, r *http.Request) {
	rt.userOperation(w, r, rt.h.GetUser)
}

func (rt *router) activateUser(w http.ResponseWriter, r *http.Request) {
	rt.userOperation(w, r, rt.h.ActivateUser)
}

func (rt *router) deactivateUser(w http.ResponseWriter, r *http.Request) {
	rt.userOperation(w, r, rt.h.DeactivateUser)
}

func (rt *router) userOperation(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, params UserParams) (*User, error)) {
	ctx := r.Context()

	res, err := op(ctx, userParams(r))
	if err != nil {
		rt.writeError(ctx, w, err)

		return
	}

	rt.writeJSON(ctx, w, http.StatusOK, res)
}

func (rt *router) updateUserProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		rt.writeError(ctx, w, err)

		return
	}

	res, err := rt.h.UpdateUserProfile(ctx, userParams(r), &req)
	if err != nil {
		rt.writeError(ctx, w, err)

		return
	}

	rt.writeJSON(ctx, w, http.StatusOK, res)
}

func (rt *router) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := rt.h.DeleteUser(ctx, userParams(r)); err != nil {
		rt.writeError(ctx, w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
