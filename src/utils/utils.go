package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/username/custoimport/src/logger"
)

// JSONErrorResponse é o formato padrão de erro devolvido pela API.
type JSONErrorResponse struct {
	Error string `json:"error"`
}

// SendJSONError writes a standardized JSON error response.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(JSONErrorResponse{Error: message}); err != nil {
		logger.L.Error("failed to encode JSON error response", "error", err, "originalMessage", message)
	}
}

// GenerateETag produces a stable hash of a JSON-serializable payload,
// used for If-None-Match handling on read endpoints.
func GenerateETag(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
