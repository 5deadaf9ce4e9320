package main

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeError writes the failure envelope shared by every handler.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// writeTokenExpired is the 401 variant that tells clients to attempt a
// refresh instead of forcing a fresh login.
func writeTokenExpired(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      false,
		"message":      "Token expired",
		"tokenExpired": true,
	})
}

// writeServerError logs the cause and responds with a generic 500. Internals
// never reach the client.
func writeServerError(w http.ResponseWriter, op string, err error) {
	log.Printf("%s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// writeSuccess writes the success envelope
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}
