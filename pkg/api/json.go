// Package api holds the JSON response helpers shared by the HTTP servers.
package api

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// RespondWithJSON writes payload as a JSON body with the given status code.
func RespondWithJSON(code int, w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("couldn't encode JSON response")
	}
}

// RespondWithError writes a {"error": message} body. The message is
// truncated so an internal error can't leak an unbounded payload to users.
func RespondWithError(code int, w http.ResponseWriter, message string) {
	const maxErrorLen = 100
	if len(message) > maxErrorLen {
		message = message[:maxErrorLen]
	}
	RespondWithJSON(code, w, map[string]string{"error": message})
}
