// Package api exposes HTTP handlers for the activity ledger.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/fitledger/internal/auth"
	"example.com/fitledger/internal/domain"
	"example.com/fitledger/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Handler coordinates HTTP requests with the ledger service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/users", h.users)
	mux.HandleFunc("/v1/users/", h.userByID)
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/admins", h.admins)
	mux.HandleFunc("/v1/admins/", h.adminByPrincipal)
	mux.HandleFunc("/v1/thresholds", h.thresholds)
	mux.HandleFunc("/v1/thresholds/", h.thresholdByName)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	user := domain.UserID(req.UserID)
	if err := h.service.AddUser(r.Context(), caller, user); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ScoreResponse{UserID: req.UserID, Score: 0})
}

func (h *Handler) userByID(w http.ResponseWriter, r *http.Request) {
	id, view, ok := userRoute(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	switch view {
	case "score":
		h.userScore(w, r, id)
	case "activities":
		h.userActivities(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
	}
}

// userRoute splits /v1/users/{id}/{view} on the last slash of the escaped path, so ids
// containing '/' resolve whether the client percent-encodes them or not.
func userRoute(r *http.Request) (domain.UserID, string, bool) {
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/v1/users/")
	cut := strings.LastIndex(rest, "/")
	if cut <= 0 {
		return "", "", false
	}
	id, err := url.PathUnescape(rest[:cut])
	if err != nil || id == "" {
		return "", "", false
	}
	return domain.UserID(id), rest[cut+1:], true
}

func (h *Handler) userScore(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	score, err := h.service.UserActivityScore(user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScoreResponse{UserID: string(user), Score: score})
}

func (h *Handler) userActivities(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	after, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid cursor")
		return
	}

	records, err := h.service.UserActivities(user)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page, next := persistence.Page(records, after, limit)
	resp := ListActivitiesResponse{
		Items:      toActivityViews(page),
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.addActivity(w, r)
	case http.MethodGet:
		h.searchActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) addActivity(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req AddActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rec, err := h.service.AddActivity(r.Context(), caller, domain.ActivityInput{
		UserID:  domain.UserID(req.UserID),
		Minutes: req.Minutes,
		Steps:   req.Steps,
		Date:    req.Date,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(rec))
}

// searchActivities is the legacy text search over rendered records. It matches
// substrings, so q=al also returns records belonging to alice.
func (h *Handler) searchActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing q parameter")
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toActivityViews(h.service.SearchActivities(q))})
}

func (h *Handler) admins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toAdminsResponse(h.service.Admins()))
	case http.MethodPost:
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		var req AdminRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if strings.TrimSpace(req.Principal) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "principal is required")
			return
		}
		if err := h.service.AddAdmin(r.Context(), caller, domain.Principal(req.Principal)); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAdminsResponse(h.service.Admins()))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) adminByPrincipal(w http.ResponseWriter, r *http.Request) {
	target, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/v1/admins/"))
	if err != nil || target == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing principal")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveAdmin(r.Context(), caller, domain.Principal(target)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminsResponse(h.service.Admins()))
}

func (h *Handler) thresholds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, toThresholdsResponse(h.service.Thresholds()))
}

func (h *Handler) thresholdByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1/thresholds/")
	if name != "min-active-minutes" && name != "min-steps" {
		writeError(w, http.StatusNotFound, "not_found", "unknown threshold")
		return
	}
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	var err error
	if name == "min-active-minutes" {
		err = h.service.SetMinActiveMinutes(r.Context(), caller, req.Value)
	} else {
		err = h.service.SetMinSteps(r.Context(), caller, req.Value)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toThresholdsResponse(h.service.Thresholds()))
}

// AddUserRequest is the payload for POST /v1/users.
type AddUserRequest struct {
	UserID string `json:"user_id"`
}

// AddActivityRequest is the payload for POST /v1/activities.
type AddActivityRequest struct {
	UserID  string `json:"user_id"`
	Minutes uint32 `json:"minutes"`
	Steps   uint32 `json:"steps"`
	Date    string `json:"date"`
}

// Validate checks request shape. Threshold checks belong to the ledger.
func (r AddActivityRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// AdminRequest is the payload for POST /v1/admins.
type AdminRequest struct {
	Principal string `json:"principal"`
}

// ThresholdRequest is the payload for PUT /v1/thresholds/{name}.
type ThresholdRequest struct {
	Value uint32 `json:"value"`
}

// ScoreResponse reports the number of accepted activities of a user.
type ScoreResponse struct {
	UserID string `json:"user_id"`
	Score  uint32 `json:"score"`
}

// ActivityView exposes a recorded activity.
type ActivityView struct {
	ActivityID string    `json:"activity_id"`
	Seq        uint64    `json:"seq"`
	UserID     string    `json:"user_id"`
	Minutes    uint32    `json:"minutes"`
	Steps      uint32    `json:"steps"`
	Date       string    `json:"date"`
	RecordedBy string    `json:"recorded_by"`
	RecordedAt time.Time `json:"recorded_at"`
	Display    string    `json:"display"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// AdminsResponse lists the current administrators.
type AdminsResponse struct {
	Admins []string `json:"admins"`
}

// ThresholdsResponse reports the acceptance thresholds.
type ThresholdsResponse struct {
	MinActiveMinutes uint32 `json:"min_active_minutes"`
	MinSteps         uint32 `json:"min_steps"`
}

func callerFrom(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	caller, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	return caller, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access_denied", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrTooLittleMinutes):
		writeError(w, http.StatusUnprocessableEntity, "too_little_minutes", err.Error())
	case errors.Is(err, domain.ErrTooLittleSteps):
		writeError(w, http.StatusUnprocessableEntity, "too_little_steps", err.Error())
	case errors.Is(err, domain.ErrValidationFailed):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(rec domain.ActivityRecord) ActivityView {
	return ActivityView{
		ActivityID: rec.ID,
		Seq:        rec.Seq,
		UserID:     string(rec.UserID),
		Minutes:    rec.Minutes,
		Steps:      rec.Steps,
		Date:       rec.Date,
		RecordedBy: string(rec.RecordedBy),
		RecordedAt: rec.RecordedAt,
		Display:    rec.String(),
	}
}

func toActivityViews(records []domain.ActivityRecord) []ActivityView {
	items := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		items = append(items, toActivityView(rec))
	}
	return items
}

func toAdminsResponse(admins []domain.Principal) AdminsResponse {
	resp := AdminsResponse{Admins: make([]string, 0, len(admins))}
	for _, a := range admins {
		resp.Admins = append(resp.Admins, string(a))
	}
	return resp
}

func toThresholdsResponse(t domain.Thresholds) ThresholdsResponse {
	return ThresholdsResponse{MinActiveMinutes: t.MinActiveMinutes, MinSteps: t.MinSteps}
}
