// Package httputil contains JSON helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// DefaultErrorJson is the machine-readable shape of HTTP error responses.
type DefaultErrorJson struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// WriteJson marshals the value and writes it with a 200 status.
func WriteJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response body")
	}
}

// WriteError writes a DefaultErrorJson with its embedded status code.
func WriteError(w http.ResponseWriter, errJson *DefaultErrorJson) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errJson.Code)
	if err := json.NewEncoder(w).Encode(errJson); err != nil {
		log.WithError(err).Error("Could not write error response body")
	}
}

// HandleError writes a message with the given status code.
func HandleError(w http.ResponseWriter, message string, code int) {
	errJson := &DefaultErrorJson{
		Message: message,
		Code:    code,
	}
	WriteError(w, errJson)
}

// WriteJsonWithStatus marshals the value and writes it with the given status.
func WriteJsonWithStatus(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response body")
	}
}
