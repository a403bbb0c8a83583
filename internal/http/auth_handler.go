package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/example/conference-companion/internal/application"
)

const (
	pendingCookieName = "pending_signin"
	pendingCookieTTL  = 24 * time.Hour
	dashboardPath     = "/dashboard"
)

type authService interface {
	RequestSignIn(ctx context.Context, email string) error
	CompleteSignIn(ctx context.Context, email, token string) (application.SessionToken, error)
}

// AuthCookieConfig configures the cookies written by AuthHandler.
type AuthCookieConfig struct {
	// HashKey signs the pending sign-in cookie; BlockKey optionally encrypts it.
	HashKey  []byte
	BlockKey []byte
	Secure   bool
}

// AuthHandler serves the email link sign-in flow.
type AuthHandler struct {
	service   authService
	pending   *securecookie.SecureCookie
	secure    bool
	responder responder
	logger    *slog.Logger
}

// NewAuthHandler constructs an AuthHandler. Missing cookie keys are replaced
// with random ones, which invalidates pending sign-ins across restarts.
func NewAuthHandler(service authService, cookies AuthCookieConfig, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	hashKey := cookies.HashKey
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	pending := securecookie.New(hashKey, cookies.BlockKey)
	pending.MaxAge(int(pendingCookieTTL.Seconds()))
	return &AuthHandler{
		service:   service,
		pending:   pending,
		secure:    cookies.Secure,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// SignIn emails a sign-in link and remembers the address in a signed cookie.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req signInRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "SignIn", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode sign-in request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	email, err := application.NormalizeEmail(req.Email)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "SignIn", "email", email)
	if err := h.service.RequestSignIn(r.Context(), email); err != nil {
		logger.ErrorContext(r.Context(), "sign-in request failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if encoded, err := h.pending.Encode(pendingCookieName, email); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     pendingCookieName,
			Value:    encoded,
			Path:     "/",
			MaxAge:   int(pendingCookieTTL.Seconds()),
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
	} else {
		logger.WarnContext(r.Context(), "failed to encode pending sign-in cookie", "error", err)
	}

	logger.InfoContext(r.Context(), "sign-in link requested")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Check your email for a sign-in link."})
}

// Verify completes sign-in from an emailed link, sets the session cookie and
// redirects to the dashboard.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	email := strings.TrimSpace(query.Get("email"))
	if email == "" {
		email = h.pendingEmail(r)
	}
	token := strings.TrimSpace(query.Get("token"))

	logger := h.log(r.Context(), "Verify", "email", email)
	result, err := h.service.CompleteSignIn(r.Context(), email, token)
	if err != nil {
		logger.WarnContext(r.Context(), "sign-in verification failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.setSessionCookie(w, result.Token, result.ExpiresAt)
	h.clearCookie(w, pendingCookieName)

	logger.With("principal_id", result.Principal.UserID, "new_account", result.NewAccount).InfoContext(r.Context(), "user signed in")
	http.Redirect(w, r, redirectTarget(query.Get("redirect")), http.StatusSeeOther)
}

// Session reports the principal behind the current session cookie.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || !principal.Authenticated() {
		h.responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{
		User: userDTO{ID: principal.UserID, Email: principal.Email},
	})
}

// SignOut clears the session cookie.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, SessionCookieName)
	h.clearCookie(w, pendingCookieName)
	h.log(r.Context(), "SignOut").InfoContext(r.Context(), "session cleared")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Signed out."})
}

func (h *AuthHandler) pendingEmail(r *http.Request) string {
	cookie, err := r.Cookie(pendingCookieName)
	if err != nil {
		return ""
	}
	var email string
	if err := h.pending.Decode(pendingCookieName, cookie.Value, &email); err != nil {
		h.log(r.Context(), "Verify").DebugContext(r.Context(), "pending sign-in cookie rejected", "error", err)
		return ""
	}
	return email
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
	})
}

// redirectTarget only follows local paths.
func redirectTarget(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || !strings.HasPrefix(candidate, "/") || strings.HasPrefix(candidate, "//") || strings.Contains(candidate, `\`) {
		return dashboardPath
	}
	return candidate
}

type signInRequest struct {
	Email string `json:"email"`
}

type userDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionResponse struct {
	User userDTO `json:"user"`
}
