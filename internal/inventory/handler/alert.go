package handler

import (
	"net/http"
	"strconv"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/httputil"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	engine *service.AlertEngine
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(engine *service.AlertEngine, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		engine: engine,
		logger: log,
	}
}

// List lists alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize := httputil.Pagination(r, service.DefaultPageSize, service.MaxPageSize)

	query := service.AlertQuery{
		Search:   q.Get("search"),
		Page:     page,
		PageSize: pageSize,
	}

	if v := q.Get("type"); v != "" {
		t, err := repository.ParseAlertType(v)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		query.Type = &t
	}

	if v := q.Get("severity"); v != "" {
		s, err := repository.ParseSeverity(v)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		query.Severity = &s
	}

	var err error
	if query.UnreadOnly, err = boolParam(q.Get("unreadOnly"), "unreadOnly"); err != nil {
		httputil.Error(w, err)
		return
	}
	if query.IncludeResolved, err = boolParam(q.Get("includeResolved"), "includeResolved"); err != nil {
		httputil.Error(w, err)
		return
	}

	if v := q.Get("windowDays"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			httputil.Error(w, errors.InvalidField("windowDays", "must be a number"))
			return
		}
		query.WindowDays = days
	}

	result, err := h.engine.List(r.Context(), query)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	meta := httputil.NewMeta(result.Total, result.Page, result.PageSize)
	meta.Unread = &result.Unread
	httputil.JSONWithMeta(w, http.StatusOK, result.Alerts, meta)
}

// MarkRead marks one alert as read
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	alert, err := h.engine.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}

// MarkAllRead marks every unread alert, optionally of one type, as read
func (h *AlertHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	var alertType *repository.AlertType
	if v := r.URL.Query().Get("type"); v != "" {
		t, err := repository.ParseAlertType(v)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		alertType = &t
	}

	updated, err := h.engine.MarkAllRead(r.Context(), alertType)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func boolParam(v, name string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.InvalidField(name, "must be true or false")
	}
	return b, nil
}
