// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeValidation  = "validation_error"
	ErrCodeDevice      = "device_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeInternal    = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeStoreError maps a store failure onto an HTTP status.
func writeStoreError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case stderrors.Is(err, errors.ErrDeviceNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.IsValidationError(err):
		return http.StatusBadRequest, ErrCodeValidation
	case stderrors.Is(err, errors.ErrDeviceExists),
		stderrors.Is(err, errors.ErrOperationPending),
		stderrors.Is(err, errors.ErrScanInProgress),
		stderrors.Is(err, errors.ErrDeviceOffline):
		return http.StatusConflict, ErrCodeConflict
	case stderrors.Is(err, errors.ErrCircuitBreakerOpen),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.IsCommandError(err), errors.IsConnectionError(err), errors.IsScanError(err):
		return http.StatusBadGateway, ErrCodeDevice
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
