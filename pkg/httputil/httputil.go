package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/farmacia/farmacia-backend/pkg/errors"
)

// Response is a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody represents an error in the response
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta contains pagination and other metadata
type Meta struct {
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
	Unread     *int64 `json:"unread,omitempty"`
}

// NewMeta builds pagination metadata
func NewMeta(total int64, page, pageSize int) *Meta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(total) / pageSize
		if int(total)%pageSize > 0 {
			totalPages++
		}
	}
	return &Meta{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	JSONWithMeta(w, statusCode, data, nil)
}

// JSONWithMeta sends a JSON response with metadata
func JSONWithMeta(w http.ResponseWriter, statusCode int, data interface{}, meta *Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
		Meta:    meta,
	}

	json.NewEncoder(w).Encode(response)
}

// Error sends an error response. Errors that are not AppErrors are reported
// as internal errors without their message.
func Error(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.Internal("an unexpected error occurred")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := Response{
		Success: false,
		Error: &ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// DecodeJSON decodes the request body into the provided struct.
// Tagged enum types reject unknown values here, so their messages are surfaced.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return errors.BadRequest("invalid JSON body")
	}
	return nil
}

// Pagination reads page and pageSize query parameters with bounds.
func Pagination(r *http.Request, defaultSize, maxSize int) (page, pageSize int) {
	q := r.URL.Query()

	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	pageSize, _ = strconv.Atoi(q.Get("pageSize"))
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}

	return page, pageSize
}
