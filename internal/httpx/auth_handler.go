package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/auth"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/go-chi/chi/v5"
)

type Authenticator interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.Session, error)
	Me(ctx context.Context, userID int64) (*auth.User, error)
}

// GuestCartMerger folds a guest cart into the user's cart after login.
type GuestCartMerger interface {
	MergeGuest(ctx context.Context, token string, userID int64) error
}

type AuthHandler struct {
	Auth        Authenticator
	Carts       GuestCartMerger // optional
	ServiceName string
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/api/auth/register", h.register)
	r.Post("/api/auth/login", h.login)
	r.Get("/api/auth/me", h.me)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Auth.Register(ctx, in)
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "errors": verr.Fields})
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", nil)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "server_error", nil)
	default:
		writeOK(w, http.StatusCreated, sessionBody(sess))
	}
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Auth.Login(ctx, in)
	switch {
	case errors.Is(err, auth.ErrMalformedCredentials):
		writeError(w, http.StatusBadRequest, "bad_credentials", nil)
		return
	case errors.Is(err, auth.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, "bad_credentials", nil)
		return
	case errors.Is(err, auth.ErrInactive):
		writeError(w, http.StatusForbidden, "inactive", nil)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "server_error", nil)
		return
	}

	h.mergeGuestCart(ctx, w, r, sess.User.ID)
	writeOK(w, http.StatusOK, sessionBody(sess))
}

// mergeGuestCart never fails the login; a merge error is only logged.
func (h *AuthHandler) mergeGuestCart(ctx context.Context, w http.ResponseWriter, r *http.Request, userID int64) {
	c, err := r.Cookie(cartCookie)
	if err != nil || h.Carts == nil {
		return
	}
	if err := h.Carts.MergeGuest(ctx, c.Value, userID); err != nil {
		logging.Log(logging.Fields{Service: h.ServiceName, UserID: userID, Step: "merge_guest_cart", Status: "error", Error: err.Error()})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: cartCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	u, err := h.Auth.Me(r.Context(), id.UserID)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"user": u})
}

func sessionBody(s *auth.Session) map[string]any {
	return map[string]any{"user": s.User, "token": s.Token, "expires_at": s.ExpiresAt}
}
