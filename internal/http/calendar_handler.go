package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/feed"
)

type selectionService interface {
	Load(ctx context.Context, principal application.Principal) (application.SelectionDocument, error)
	EnsureProvisioned(ctx context.Context, principal application.Principal, initial []string) (application.SelectionDocument, bool, error)
	ReplaceAll(ctx context.Context, principal application.Principal, feedID string, ids []string) (application.SelectionDocument, error)
	Remove(ctx context.Context, principal application.Principal, feedID string) error
	Save(ctx context.Context, principal application.Principal, ids []string) (application.SelectionDocument, error)
}

type feedRenderer interface {
	Render(ctx context.Context, feedID string) ([]byte, error)
}

// CalendarHandler serves the selection document and its public feed.
type CalendarHandler struct {
	selections selectionService
	feeds      feedRenderer
	baseURL    string
	responder  responder
	logger     *slog.Logger
}

// NewCalendarHandler constructs a CalendarHandler. baseURL is the public
// origin used to advertise feed URLs and may be empty.
func NewCalendarHandler(selections selectionService, feeds feedRenderer, baseURL string, logger *slog.Logger) *CalendarHandler {
	base := defaultLogger(logger)
	return &CalendarHandler{
		selections: selections,
		feeds:      feeds,
		baseURL:    strings.TrimRight(baseURL, "/"),
		responder:  newResponder(base),
		logger:     base,
	}
}

func (h *CalendarHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CalendarHandler", operation, attrs...)
}

// Get returns the caller's document, or null when none exists yet.
func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	doc, err := h.selections.Load(r.Context(), principal)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			h.responder.writeJSON(r.Context(), w, http.StatusOK, calendarResponse{})
			return
		}
		h.log(r.Context(), "Get", "principal_id", principal.UserID).ErrorContext(r.Context(), "calendar load failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.calendarResponse(doc, ""))
}

// Create provisions the caller's document unless one already exists.
func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req createCalendarRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode calendar request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)
	doc, created, err := h.selections.EnsureProvisioned(r.Context(), principal, req.SelectedEventIDs)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar provisioning failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if !created {
		h.responder.writeJSON(r.Context(), w, http.StatusOK, h.calendarResponse(doc, "Calendar already exists."))
		return
	}
	logger.With("feed_id", doc.FeedID).InfoContext(r.Context(), "calendar created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, h.calendarResponse(doc, "Calendar created."))
}

// Update replaces the selection of an owned document.
func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req updateCalendarRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode calendar update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	feedID := req.feedID()
	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "feed_id", feedID)
	if _, err := h.selections.ReplaceAll(r.Context(), principal, feedID, req.SelectedEventIDs); err != nil {
		logger.ErrorContext(r.Context(), "calendar update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "calendar updated", "selected", len(req.SelectedEventIDs))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Calendar updated."})
}

// Delete removes an owned document.
func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	feedID := strings.TrimSpace(query.Get("feedId"))
	if feedID == "" {
		feedID = strings.TrimSpace(query.Get("calendarId"))
	}
	if feedID == "" {
		h.log(r.Context(), "Delete", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "missing feed id for delete")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingFeedID)
		return
	}

	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "feed_id", feedID)
	if err := h.selections.Remove(r.Context(), principal, feedID); err != nil {
		logger.ErrorContext(r.Context(), "calendar delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "calendar deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Calendar deleted."})
}

// Save stores a non-empty selection, provisioning the document when needed.
func (h *CalendarHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req createCalendarRequest
	if err := decodeBody(r, &req); err != nil {
		h.log(r.Context(), "Save", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode save request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Save", "principal_id", principal.UserID)
	doc, err := h.selections.Save(r.Context(), principal, req.SelectedEventIDs)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar save failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("feed_id", doc.FeedID).InfoContext(r.Context(), "calendar saved")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, saveResponse{
		Message: "Calendar saved.",
		FeedID:  doc.FeedID,
		FeedURL: h.feedURL(doc.FeedID),
	})
}

// Feed serves the rendered iCalendar document for feedID.
func (h *CalendarHandler) Feed(w http.ResponseWriter, r *http.Request, feedID string) {
	if h == nil || h.feeds == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body, err := h.feeds.Render(r.Context(), feedID)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			h.responder.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Message: statusMessage(http.StatusNotFound)})
			return
		}
		h.log(r.Context(), "Feed", "feed_id", feedID).ErrorContext(r.Context(), "feed render failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Message: "Failed to generate calendar."})
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.log(r.Context(), "Feed", "feed_id", feedID).WarnContext(r.Context(), "failed to write feed", "error", err)
	}
}

func (h *CalendarHandler) feedURL(feedID string) string {
	if h.baseURL == "" || feedID == "" {
		return ""
	}
	return h.baseURL + "/api/calendar/" + feedID
}

func (h *CalendarHandler) calendarResponse(doc application.SelectionDocument, message string) calendarResponse {
	dto := toCalendarDTO(doc)
	resp := calendarResponse{Message: message, Calendar: &dto}
	if u := h.feedURL(doc.FeedID); u != "" {
		resp.FeedURL = u
		resp.WebcalURL = feed.WebcalURL(u)
	}
	return resp
}

type calendarDTO struct {
	ID               string   `json:"id"`
	FeedID           string   `json:"feedId"`
	OwnerUserID      string   `json:"ownerUserId"`
	SelectedEventIDs []string `json:"selectedEventIds"`
}

func toCalendarDTO(doc application.SelectionDocument) calendarDTO {
	ids := doc.SelectedEventIDs
	if ids == nil {
		ids = []string{}
	}
	return calendarDTO{
		ID:               doc.FeedID,
		FeedID:           doc.FeedID,
		OwnerUserID:      doc.OwnerUserID,
		SelectedEventIDs: ids,
	}
}

type calendarResponse struct {
	Message   string       `json:"message,omitempty"`
	Calendar  *calendarDTO `json:"calendar"`
	FeedURL   string       `json:"feedUrl,omitempty"`
	WebcalURL string       `json:"webcalUrl,omitempty"`
}

type createCalendarRequest struct {
	SelectedEventIDs []string `json:"selectedEventIds"`
}

type updateCalendarRequest struct {
	FeedID           string   `json:"feedId"`
	CalendarID       string   `json:"calendarId"`
	SelectedEventIDs []string `json:"selectedEventIds"`
}

func (r updateCalendarRequest) feedID() string {
	if id := strings.TrimSpace(r.FeedID); id != "" {
		return id
	}
	return strings.TrimSpace(r.CalendarID)
}

type saveResponse struct {
	Message string `json:"message"`
	FeedID  string `json:"feedId"`
	FeedURL string `json:"feedUrl,omitempty"`
}
