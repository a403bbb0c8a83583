package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/catalog"
)

const refreshSecretHeader = "x-refresh-secret"

type catalogService interface {
	ListSessions(ctx context.Context, principal application.Principal, query string) ([]application.SessionView, error)
	ListSpeakers(ctx context.Context) []catalog.Speaker
	Reload(ctx context.Context) (int, error)
}

// CatalogHandler serves the read-only programme.
type CatalogHandler struct {
	service       catalogService
	refreshSecret string
	responder     responder
	logger        *slog.Logger
}

// NewCatalogHandler constructs a CatalogHandler. An empty refresh secret
// disables the refresh endpoint.
func NewCatalogHandler(service catalogService, refreshSecret string, logger *slog.Logger) *CatalogHandler {
	base := defaultLogger(logger)
	return &CatalogHandler{service: service, refreshSecret: refreshSecret, responder: newResponder(base), logger: base}
}

func (h *CatalogHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CatalogHandler", operation, attrs...)
}

// Sessions lists the catalog filtered by the q parameter.
func (h *CatalogHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	views, err := h.service.ListSessions(r.Context(), principal, r.URL.Query().Get("q"))
	if err != nil {
		h.log(r.Context(), "Sessions", "principal_id", principal.UserID).ErrorContext(r.Context(), "session listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := sessionsResponse{Sessions: make([]sessionDTO, 0, len(views))}
	for _, view := range views {
		resp.Sessions = append(resp.Sessions, toSessionDTO(view))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Speakers lists the speaker catalog.
func (h *CatalogHandler) Speakers(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	speakers := h.service.ListSpeakers(r.Context())
	resp := speakersResponse{Speakers: make([]speakerDTO, 0, len(speakers))}
	for _, sp := range speakers {
		resp.Speakers = append(resp.Speakers, speakerDTO{
			DocumentID:  sp.DocumentID,
			Name:        sp.Name,
			CompanyName: sp.CompanyName,
			Position:    sp.Position,
			URL:         sp.URL,
			Priority:    sp.Priority,
			PhotoURL:    sp.PhotoURL,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Refresh reloads the catalog files when the refresh secret matches.
func (h *CatalogHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	provided := r.Header.Get(refreshSecretHeader)
	if h.refreshSecret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.refreshSecret)) != 1 {
		h.log(r.Context(), "Refresh", "error_kind", "unauthorized").WarnContext(r.Context(), "catalog refresh rejected")
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errRefreshForbidden)
		return
	}

	count, err := h.service.Reload(r.Context())
	if err != nil {
		h.log(r.Context(), "Refresh").ErrorContext(r.Context(), "catalog refresh failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Message: "Failed to reload catalog."})
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, refreshResponse{Message: "Catalog reloaded.", Sessions: count})
}

type sessionDTO struct {
	ID               int               `json:"id"`
	DocumentID       string            `json:"documentId"`
	Title            string            `json:"title"`
	Track            string            `json:"track,omitempty"`
	Type             string            `json:"type,omitempty"`
	StartTime        string            `json:"startTime"`
	EndTime          string            `json:"endTime"`
	Room             string            `json:"room"`
	Description      string            `json:"description,omitempty"`
	Speakers         map[string]string `json:"speakers,omitempty"`
	IsSpecialSession bool              `json:"isSpecialSession"`
	RegistrationLink string            `json:"registrationLink,omitempty"`
	Selected         bool              `json:"selected"`
	Conflicts        []string          `json:"conflicts"`
}

func toSessionDTO(view application.SessionView) sessionDTO {
	s := view.Session
	conflicts := view.Conflicts
	if conflicts == nil {
		conflicts = []string{}
	}
	return sessionDTO{
		ID:               s.ID,
		DocumentID:       s.DocumentID,
		Title:            s.Title,
		Track:            s.Track,
		Type:             s.Type,
		StartTime:        s.Start.UTC().Format(time.RFC3339),
		EndTime:          s.End.UTC().Format(time.RFC3339),
		Room:             s.Room,
		Description:      s.Description,
		Speakers:         s.Speakers,
		IsSpecialSession: s.IsSpecialSession,
		RegistrationLink: s.RegistrationLink,
		Selected:         view.Selected,
		Conflicts:        conflicts,
	}
}

type sessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type speakerDTO struct {
	DocumentID  string `json:"documentId"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name,omitempty"`
	Position    string `json:"position,omitempty"`
	URL         string `json:"url,omitempty"`
	Priority    int    `json:"priority"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

type speakersResponse struct {
	Speakers []speakerDTO `json:"speakers"`
}

type refreshResponse struct {
	Message  string `json:"message"`
	Sessions int    `json:"sessions"`
}
