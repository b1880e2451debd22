package validation

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/custoimport/src/logger"
)

// AllowedClientContentTypes is a map for quick lookup of allowed client-declared MIME types.
// Extratos SISCOMEX chegam como XML; alguns navegadores declaram text/plain.
var AllowedClientContentTypes = map[string]bool{
	"text/xml":        true,
	"application/xml": true,
	"text/plain":      true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": false, // .xlsx explicitly disallow
	"application/zip": false,
}

// ValidateClientContentType checks the Content-Type header provided by the client.
func ValidateClientContentType(contentType string) error {
	normalized := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if allowed, exists := AllowedClientContentTypes[normalized]; !exists || !allowed {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for XML upload", contentType)
	}
	return nil
}

// isBinaryContent checks if a buffer contains binary control characters (like null bytes)
// which indicate the file is likely not a text-based XML document.
// XMLs do SISCOMEX usam ISO-8859-1, portanto bytes acima de 0x7F são legítimos
// e a validade UTF-8 NÃO pode ser exigida aqui.
func isBinaryContent(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return true
	}
	for _, b := range buf {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			return true
		}
	}
	return false
}

// ValidateFileContentByMagicBytes checks the actual file content signature (magic bytes)
// and inspects the content to ensure it is a text-based XML document.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	// Read first 1024 bytes (1KB) for detection
	buffer := make([]byte, 1024)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}

	// IMPORTANT: Reset the file read pointer to the beginning so the actual parser can read the full file.
	_, seekErr := file.Seek(0, io.SeekStart)
	if seekErr != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", seekErr)
	}

	// If file is empty, fail early
	if n == 0 {
		return "", fmt.Errorf("file is empty")
	}

	// 1. Strict Content Inspection: Check for binary characters
	if isBinaryContent(buffer[:n]) {
		logger.L.Warn("File rejected: Binary content detected in XML upload")
		return "application/octet-stream", fmt.Errorf("file appears to be binary or executable, not an XML document")
	}

	// 2. HTTP Content Detection. A latin1 XML still sniffs as text/xml because
	// http.DetectContentType matches the '<?xml' prologue before charset concerns.
	detectedContentType := http.DetectContentType(buffer[:n])
	detectedContentType = strings.ToLower(strings.Split(detectedContentType, ";")[0]) // Normalize

	allowedDetectedTypes := map[string]bool{
		"text/xml":        true,
		"application/xml": true,
		"text/plain":      true,
	}

	if !allowedDetectedTypes[detectedContentType] {
		if detectedContentType == "application/octet-stream" {
			logger.L.Warn("File rejected: content type detected as octet-stream (ambiguous)")
		} else {
			logger.L.Warn("Disallowed detected file content type", "detectedContentType", detectedContentType)
		}
		return detectedContentType, fmt.Errorf("detected file content type '%s' is not allowed", detectedContentType)
	}

	logger.L.Debug("File content type validated", "detectedContentType", detectedContentType)
	return detectedContentType, nil
}
