// src/handlers/declaration_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/username/custoimport/src/config"
	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/logger"
	"github.com/username/custoimport/src/parsers"
	"github.com/username/custoimport/src/security/validation"
	"github.com/username/custoimport/src/services"
	"github.com/username/custoimport/src/utils"
)

type DeclarationHandler struct {
	declarationService services.DeclarationService
	exportService      services.ExportService
}

func NewDeclarationHandler(declarationService services.DeclarationService, exportService services.ExportService) *DeclarationHandler {
	return &DeclarationHandler{
		declarationService: declarationService,
		exportService:      exportService,
	}
}

func (h *DeclarationHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Falha ao processar o formulário ou o arquivo é muito grande (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	regime := fiscal.TaxRegime(strings.TrimSpace(r.FormValue("regime")))
	if !regime.IsValid() {
		ctxLogger.Warn("Upload request with invalid regime", "regime", regime)
		utils.SendJSONError(w, "Regime tributário inválido: use lucro_real, lucro_presumido ou simples_nacional.", http.StatusBadRequest)
		return
	}

	source := r.FormValue("source")
	if source == "" {
		source = parsers.SourceSiscomex
	}
	ctxLogger.Info("Received upload for source", "source", source, "regime", regime)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Falha ao ler o arquivo enviado. Use o campo 'file'.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		ctxLogger.Warn("Uploaded file header reports size too large", "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Arquivo muito grande, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	// O nome do arquivo fica registado no histórico de uploads.
	requestID := RequestIDFromContext(r.Context())
	if err := validation.CheckXSSPatterns(fileHeader.Filename, "filename", requestID); err != nil {
		utils.SendJSONError(w, "Nome de arquivo inválido.", http.StatusBadRequest)
		return
	}
	if err := validation.CheckFormulaInjection(fileHeader.Filename, "filename", requestID); err != nil {
		utils.SendJSONError(w, "Nome de arquivo inválido.", http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		ctxLogger.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		ctxLogger.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctxLogger.Info("File content validated by magic bytes", "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)

	summaries, err := h.declarationService.ProcessUpload(file, source, regime, fileHeader.Filename, fileHeader.Size)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrParsingFailed):
			ctxLogger.Warn("Upload parsing failed", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrProcessingFailed):
			ctxLogger.Warn("Upload processing failed", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			ctxLogger.Error("Upload failed", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "Falha ao processar o arquivo enviado.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		ctxLogger.Error("Error encoding JSON response for upload result", "error", err)
	}
}

func (h *DeclarationHandler) HandleListDeclarations(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	summaries, err := h.declarationService.ListDeclarations()
	if err != nil {
		ctxLogger.Error("Error listing declarations", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error listing declarations: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		ctxLogger.Error("Error encoding JSON response for declaration list", "error", err)
	}
}

func (h *DeclarationHandler) HandleGetDeclaration(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	numeroDI := chi.URLParam(r, "numeroDI")
	if err := validation.ValidateDINumber(numeroDI); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.declarationService.GetDeclarationResult(numeroDI)
	if err != nil {
		if errors.Is(err, services.ErrDeclarationNotFound) {
			utils.SendJSONError(w, fmt.Sprintf("Declaração %s não encontrada.", numeroDI), http.StatusNotFound)
			return
		}
		ctxLogger.Error("Error retrieving declaration", "numeroDI", numeroDI, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving declaration %s: %v", numeroDI, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	currentETag, etagErr := utils.GenerateETag(result)
	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		clientETags := strings.Split(r.Header.Get("If-None-Match"), ",")
		for _, cETag := range clientETags {
			if strings.TrimSpace(cETag) == quotedETag {
				ctxLogger.Debug("ETag match for declaration", "numeroDI", numeroDI, "etag", currentETag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else {
		ctxLogger.Warn("Proceeding without ETag check due to ETag generation error", "numeroDI", numeroDI, "error", etagErr)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		ctxLogger.Error("Error generating JSON response for declaration", "numeroDI", numeroDI, "error", err)
	}
}

func (h *DeclarationHandler) HandleDeleteDeclaration(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	numeroDI := chi.URLParam(r, "numeroDI")
	if err := validation.ValidateDINumber(numeroDI); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.declarationService.DeleteDeclaration(numeroDI); err != nil {
		if errors.Is(err, services.ErrDeclarationNotFound) {
			utils.SendJSONError(w, fmt.Sprintf("Declaração %s não encontrada.", numeroDI), http.StatusNotFound)
			return
		}
		ctxLogger.Error("Error deleting declaration", "numeroDI", numeroDI, "error", err)
		utils.SendJSONError(w, "Failed to delete declaration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "declaração removida", "numero_di": numeroDI})
}

func (h *DeclarationHandler) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	numeroDI := chi.URLParam(r, "numeroDI")
	if err := validation.ValidateDINumber(numeroDI); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.declarationService.GetDeclarationResult(numeroDI)
	if err != nil {
		if errors.Is(err, services.ErrDeclarationNotFound) {
			utils.SendJSONError(w, fmt.Sprintf("Declaração %s não encontrada.", numeroDI), http.StatusNotFound)
			return
		}
		ctxLogger.Error("Error retrieving declaration for export", "numeroDI", numeroDI, "error", err)
		utils.SendJSONError(w, "Failed to load declaration for export", http.StatusInternalServerError)
		return
	}

	nfRows, err := h.declarationService.GetNFFieldHistory(numeroDI)
	if err != nil {
		ctxLogger.Error("Error retrieving NF field history for export", "numeroDI", numeroDI, "error", err)
		utils.SendJSONError(w, "Failed to load NF field history for export", http.StatusInternalServerError)
		return
	}

	workbook, err := h.exportService.BuildDeclarationWorkbook(result, nfRows)
	if err != nil {
		ctxLogger.Error("Error building XLSX export", "numeroDI", numeroDI, "error", err)
		utils.SendJSONError(w, "Failed to build XLSX export", http.StatusInternalServerError)
		return
	}
	defer workbook.Close()

	filename := fmt.Sprintf("custos_di_%s.xlsx", numeroDI)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := workbook.Write(w); err != nil {
		// Headers já foram enviados; só resta registar a falha.
		ctxLogger.Error("Error streaming XLSX export", "numeroDI", numeroDI, "error", err)
	}
}
