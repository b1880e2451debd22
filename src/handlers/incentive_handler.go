// src/handlers/incentive_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/logger"
	"github.com/username/custoimport/src/security/validation"
	"github.com/username/custoimport/src/services"
	"github.com/username/custoimport/src/utils"
)

type IncentiveHandler struct {
	declarationService services.DeclarationService
}

func NewIncentiveHandler(service services.DeclarationService) *IncentiveHandler {
	return &IncentiveHandler{declarationService: service}
}

type eligibilityRequest struct {
	UF      string   `json:"uf"`
	Program string   `json:"programa"`
	NCMs    []string `json:"ncms"`
}

func (h *IncentiveHandler) HandleValidateEligibility(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.UF = strings.ToUpper(strings.TrimSpace(req.UF))
	req.Program = strings.TrimSpace(req.Program)

	if err := validation.ValidateUF(req.UF); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateProgramCode(req.Program); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.NCMs) == 0 {
		utils.SendJSONError(w, "Informe ao menos um NCM em 'ncms'.", http.StatusBadRequest)
		return
	}
	for _, ncm := range req.NCMs {
		if err := validation.ValidateNCM(ncm); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	ctxLogger.Info("Handling eligibility request", "uf", req.UF, "program", req.Program, "ncmCount", len(req.NCMs))

	result, err := h.declarationService.ValidateEligibility(req.UF, req.Program, req.NCMs)
	if err != nil {
		var unknownProgram *fiscal.UnknownProgramError
		if errors.As(err, &unknownProgram) {
			utils.SendJSONError(w, unknownProgram.Error(), http.StatusNotFound)
			return
		}
		ctxLogger.Error("Error validating eligibility", "uf", req.UF, "program", req.Program, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error validating eligibility: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		ctxLogger.Error("Error encoding JSON response for eligibility", "error", err)
	}
}

func (h *IncentiveHandler) HandleListPrograms(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	programs := h.declarationService.ListPrograms()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(programs); err != nil {
		ctxLogger.Error("Error encoding JSON response for program list", "error", err)
	}
}

func (h *IncentiveHandler) HandleCalculateNFFields(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	numeroDI := chi.URLParam(r, "numeroDI")
	if err := validation.ValidateDINumber(numeroDI); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	programCode := strings.TrimSpace(r.URL.Query().Get("programa"))
	if programCode == "" {
		utils.SendJSONError(w, "Parâmetro 'programa' é obrigatório.", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateProgramCode(programCode); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctxLogger.Info("Handling NF field calculation", "numeroDI", numeroDI, "program", programCode)

	fields, err := h.declarationService.CalculateNFFields(numeroDI, programCode)
	if err != nil {
		var (
			unknownProgram *fiscal.UnknownProgramError
			missingConfig  *fiscal.MissingConfigurationError
			missingField   *fiscal.MissingFieldError
		)
		switch {
		case errors.Is(err, services.ErrDeclarationNotFound):
			utils.SendJSONError(w, fmt.Sprintf("Declaração %s não encontrada.", numeroDI), http.StatusNotFound)
		case errors.As(err, &unknownProgram):
			utils.SendJSONError(w, unknownProgram.Error(), http.StatusNotFound)
		case errors.As(err, &missingConfig):
			utils.SendJSONError(w, missingConfig.Error(), http.StatusUnprocessableEntity)
		case errors.As(err, &missingField):
			utils.SendJSONError(w, missingField.Error(), http.StatusUnprocessableEntity)
		default:
			ctxLogger.Error("Error calculating NF fields", "numeroDI", numeroDI, "program", programCode, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error calculating NF fields: %v", err), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(fields); err != nil {
		ctxLogger.Error("Error encoding JSON response for NF fields", "error", err)
	}
}
