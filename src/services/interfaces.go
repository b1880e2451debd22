// src/services/interfaces.go
package services

import (
	"errors"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/model"
	"github.com/username/custoimport/src/models"
)

// Define common service errors
var (
	ErrParsingFailed       = errors.New("xml parsing failed")
	ErrProcessingFailed    = errors.New("declaration processing failed")
	ErrDeclarationNotFound = errors.New("declaration not found")
	ErrExportFailed        = errors.New("xlsx export failed")
)

// DeclarationService defines the interface for the core declaration pipeline:
// parse an extract, classify and cost every product, persist the outcome and
// answer incentive/reform questions about it.
type DeclarationService interface {
	ProcessUpload(fileReader io.Reader, source string, regime fiscal.TaxRegime, filename string, filesize int64) ([]models.UploadSummary, error)
	GetDeclarationResult(numeroDI string) (*models.DeclarationResult, error)
	ListDeclarations() ([]model.DeclarationSummary, error)
	DeleteDeclaration(numeroDI string) error

	ValidateEligibility(uf, programCode string, ncms []string) (models.EligibilityResult, error)
	CalculateNFFields(numeroDI, programCode string) ([]models.NFFields, error)
	GetNFFieldHistory(numeroDI string) ([]model.NFFieldRow, error)
	ListPrograms() []models.ProgramView

	ProjectReformScenarios(startYear int) ([]models.ReformScenario, error)

	InvalidateDeclarationCache(numeroDI string)
}

// ExportService builds spreadsheet reports from computed results.
type ExportService interface {
	BuildDeclarationWorkbook(result *models.DeclarationResult, nfRows []model.NFFieldRow) (*excelize.File, error)
}
