package handlers

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse writes the API's error shape and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status":  "Error",
		"message": message,
	})
}

// TokenErrorResponse writes the legacy invalid-token shape.
func TokenErrorResponse(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusForbidden, map[string]string{
		"Error": "Invalid Token",
	})
}
