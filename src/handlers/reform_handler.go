// src/handlers/reform_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/logger"
	"github.com/username/custoimport/src/security/validation"
	"github.com/username/custoimport/src/services"
	"github.com/username/custoimport/src/utils"
)

type ReformHandler struct {
	declarationService services.DeclarationService
}

func NewReformHandler(service services.DeclarationService) *ReformHandler {
	return &ReformHandler{declarationService: service}
}

func (h *ReformHandler) HandleGetScenarios(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	anoInicioStr := r.URL.Query().Get("anoInicio")
	if anoInicioStr == "" {
		utils.SendJSONError(w, "Parâmetro 'anoInicio' é obrigatório.", http.StatusBadRequest)
		return
	}
	anoInicio, err := validation.ValidateIntString(anoInicioStr, "anoInicio", false, 2000, 2100)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	scenarios, err := h.declarationService.ProjectReformScenarios(anoInicio)
	if err != nil {
		var invalidYear *fiscal.InvalidYearError
		if errors.As(err, &invalidYear) {
			utils.SendJSONError(w, invalidYear.Error(), http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Error projecting reform scenarios", "anoInicio", anoInicio, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error projecting reform scenarios: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(scenarios); err != nil {
		ctxLogger.Error("Error encoding JSON response for reform scenarios", "error", err)
	}
}
