package handler

import (
	"net/http"
	"testing"

	"github.com/hitoshi/taskman/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeAuthRejected, http.StatusUnprocessableEntity},
		{model.ErrCodeEmailNotConfirmed, http.StatusForbidden},
		{model.ErrCodeNotAuthenticated, http.StatusUnauthorized},
		{model.ErrCodeTaskNotFound, http.StatusNotFound},
		{model.ErrCodeInvalidTitle, http.StatusBadRequest},
		{model.ErrCodeInvalidStatus, http.StatusBadRequest},
		{model.ErrCodeInvalidPriority, http.StatusBadRequest},
		{model.ErrCodeInvalidDueDate, http.StatusBadRequest},
		{model.ErrCodeInvalidToken, http.StatusBadRequest},
		{model.ErrCodeEmptyPatch, http.StatusBadRequest},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code})
			if got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
