// Package api exposes HTTP handlers for the telemetry sync service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/observability"
)

// exportWindow is the trailing span exported when no explicit bounds are given.
const exportWindow = 180 * 24 * time.Hour

// Handler coordinates HTTP requests with the query planner.
type Handler struct {
	service *domain.Service
	now     func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service, now: func() time.Time { return time.Now().UTC() }}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/summary/", h.summary)
	mux.HandleFunc("/v1/export/", h.export)
	mux.HandleFunc("/v1/status", h.status)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// summary serves GET /v1/summary/{data_type}/{user_id}?start_date=&end_date=.
// A fully cached range is answered as-is; an uncovered one schedules a
// background fetch and returns whatever overlap is already stored.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/summary/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected /v1/summary/{data_type}/{user_id}")
		return
	}

	dataType, err := domain.ParseDataType(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	userID := parts[1]

	start, err := parseDateParam(r, "start_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	end, err := parseDateParam(r, "end_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.service.Query(r.Context(), userID, dataType, start, end)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRange) || errors.Is(err, domain.ErrMissingUser) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	observability.RecordQuery(result.Complete)

	resp := SummaryResponse{
		UserID:    userID,
		DataType:  string(dataType),
		StartDate: start.Format(time.DateOnly),
		EndDate:   end.Format(time.DateOnly),
		Complete:  result.Complete,
		JobID:     result.JobID,
	}
	switch dataType {
	case domain.DataTypeWorkouts:
		resp.Count = len(result.Workouts)
		resp.Workouts = result.Workouts
	case domain.DataTypeActivity:
		resp.Count = len(result.Activity)
		resp.Activity = result.Activity
	}
	writeJSON(w, http.StatusOK, resp)
}

// export serves GET /v1/export/{user_id}. Without explicit bounds it covers
// the trailing 180 days.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	userID := strings.TrimPrefix(r.URL.Path, "/v1/export/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected /v1/export/{user_id}")
		return
	}

	end := h.now()
	start := end.Add(-exportWindow)
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		end = parsed
		start = end.Add(-exportWindow)
	}
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		start = parsed
	}

	result, err := h.service.Query(r.Context(), userID, domain.DataTypeWorkouts, start, end)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRange) || errors.Is(err, domain.ErrMissingUser) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	observability.RecordQuery(result.Complete)

	resp := ExportResponse{
		UserID:      userID,
		GeneratedAt: h.now(),
		StartDate:   start.Format(time.DateOnly),
		EndDate:     end.Format(time.DateOnly),
		Complete:    result.Complete,
		Count:       len(result.Workouts),
		Workouts:    result.Workouts,
	}
	writeJSON(w, http.StatusOK, resp)
}

// status serves GET /v1/status with operational diagnostics.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	report, err := h.service.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := StatusResponse{
		Connected:      true,
		Users:          report.Users,
		Workouts:       report.Workouts,
		DailyActivity:  report.DailyActivity,
		CompleteRanges: report.CompleteRanges,
		Jobs:           make(map[string]int64, len(report.JobCounts)),
	}
	for status, count := range report.JobCounts {
		resp.Jobs[string(status)] = count
	}
	if report.LatestJob != nil {
		view := toJobView(*report.LatestJob)
		resp.LatestJob = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// SummaryResponse packages one range query result.
type SummaryResponse struct {
	UserID    string                 `json:"user_id"`
	DataType  string                 `json:"data_type"`
	StartDate string                 `json:"start_date"`
	EndDate   string                 `json:"end_date"`
	Complete  bool                   `json:"complete"`
	JobID     string                 `json:"job_id,omitempty"`
	Count     int                    `json:"count"`
	Workouts  []domain.Workout       `json:"workouts,omitempty"`
	Activity  []domain.DailyActivity `json:"daily_activity,omitempty"`
}

// ExportResponse wraps a workout export with download metadata.
type ExportResponse struct {
	UserID      string           `json:"user_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
	Complete    bool             `json:"complete"`
	Count       int              `json:"count"`
	Workouts    []domain.Workout `json:"workouts"`
}

// StatusResponse describes service and storage diagnostics.
type StatusResponse struct {
	Connected      bool             `json:"connected"`
	Users          int64            `json:"users"`
	Workouts       int64            `json:"workouts"`
	DailyActivity  int64            `json:"daily_activity"`
	CompleteRanges int64            `json:"complete_ranges"`
	Jobs           map[string]int64 `json:"jobs"`
	LatestJob      *JobView         `json:"latest_job,omitempty"`
}

// JobView exposes fetch job details.
type JobView struct {
	JobID        string     `json:"job_id"`
	UserID       string     `json:"user_id"`
	DataType     string     `json:"data_type"`
	StartDate    string     `json:"start_date"`
	EndDate      string     `json:"end_date"`
	Status       string     `json:"status"`
	RequestedAt  time.Time  `json:"requested_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ItemsFetched int        `json:"items_fetched"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

func toJobView(job domain.FetchJob) JobView {
	return JobView{
		JobID:        job.ID,
		UserID:       job.UserID,
		DataType:     string(job.DataType),
		StartDate:    job.StartDate.Format(time.DateOnly),
		EndDate:      job.EndDate.Format(time.DateOnly),
		Status:       string(job.Status),
		RequestedAt:  job.RequestedAt,
		CompletedAt:  job.CompletedAt,
		ItemsFetched: job.ItemsFetched,
		ErrorMessage: job.ErrorMessage,
	}
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, errors.New(name + " parameter is required")
	}
	return parseDate(raw)
}

// parseDate accepts calendar dates and full RFC 3339 timestamps.
func parseDate(raw string) (time.Time, error) {
	if parsed, err := time.Parse(time.DateOnly, raw); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid date: " + raw)
	}
	return parsed.UTC(), nil
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
