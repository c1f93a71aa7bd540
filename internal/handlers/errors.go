package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"kinship/internal/service"
)

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		zap.L().Error(logMsg, zap.Int("status", status), zap.Error(err))
	}

	http.Error(w, userMsg, status)
}

// respondWithServiceError maps service sentinels to 403 and 404 and anything
// else to a logged 500
func respondWithServiceError(w http.ResponseWriter, logMsg string, err error) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, ErrForbidden, http.StatusForbidden)
	case errors.Is(err, service.ErrPersonNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrRelationshipNotFound),
		errors.Is(err, service.ErrTemperatureRecordNotFound),
		errors.Is(err, service.ErrUnknownRelationshipKind):
		http.Error(w, ErrNotFound, http.StatusNotFound)
	default:
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, logMsg, err)
	}
}
