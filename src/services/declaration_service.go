// src/services/declaration_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/custoimport/src/database"
	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/logger"
	"github.com/username/custoimport/src/model"
	"github.com/username/custoimport/src/models"
	"github.com/username/custoimport/src/parsers"
	"github.com/username/custoimport/src/processors"
	"github.com/username/custoimport/src/security/validation"
)

const (
	ckDeclarationResult = "res_declaration_%s"
	ckDeclarationList   = "res_declaration_list"
	ckNFFields          = "res_nf_fields_%s_%s"
	ckNFFieldsPrefix    = "res_nf_fields_%s_"
	ckReformScenarios   = "agg_reform_scenarios_%d"
)

type declarationServiceImpl struct {
	tables             *fiscal.Tables
	costProcessor      processors.CostProcessor
	incentiveProcessor processors.IncentiveProcessor
	reformProcessor    processors.ReformProcessor
	resultCache        *cache.Cache
}

func NewDeclarationService(
	tables *fiscal.Tables,
	costProcessor processors.CostProcessor,
	incentiveProcessor processors.IncentiveProcessor,
	reformProcessor processors.ReformProcessor,
	resultCache *cache.Cache,
) DeclarationService {
	return &declarationServiceImpl{
		tables:             tables,
		costProcessor:      costProcessor,
		incentiveProcessor: incentiveProcessor,
		reformProcessor:    reformProcessor,
		resultCache:        resultCache,
	}
}

func (s *declarationServiceImpl) ProcessUpload(fileReader io.Reader, source string, regime fiscal.TaxRegime, filename string, filesize int64) ([]models.UploadSummary, error) {
	overallStartTime := time.Now()
	logger.L.Info("ProcessUpload START", "source", source, "regime", regime, "filename", filename)

	if !regime.IsValid() {
		return nil, fmt.Errorf("%w: unknown tax regime %q", ErrProcessingFailed, regime)
	}
	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	declarations, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	if len(declarations) == 0 {
		return nil, fmt.Errorf("%w: extract holds no declarations", ErrParsingFailed)
	}

	summaries := make([]models.UploadSummary, 0, len(declarations))
	for i := range declarations {
		decl := &declarations[i]
		sanitizeDeclaration(decl)

		// Ajustes externos (encargos, rateios, margem) entram zerados no
		// carregamento; as duas últimas camadas coincidem com o desembolso
		// até que sejam parametrizados.
		totals, err := s.costProcessor.Process(decl, regime, models.ExtraCosts{})
		if err != nil {
			return nil, fmt.Errorf("%w: declaration %s: %v", ErrProcessingFailed, decl.NumeroDI, err)
		}

		result := &models.DeclarationResult{
			Declaration: *decl,
			Regime:      regime,
			Totals:      totals,
			ProcessedAt: time.Now(),
		}
		if _, err := model.InsertDeclarationResult(database.DB, result, filename); err != nil {
			return nil, fmt.Errorf("failed to persist declaration %s: %w", decl.NumeroDI, err)
		}
		s.InvalidateDeclarationCache(decl.NumeroDI)

		summaries = append(summaries, models.UploadSummary{
			NumeroDI:      decl.NumeroDI,
			Regime:        regime,
			AdditionCount: len(decl.Additions),
			ProductCount:  countProducts(decl),
			Totals:        totals,
		})
	}

	if err := model.RecordUpload(database.DB, filename, filesize, len(summaries)); err != nil {
		logger.L.Error("Failed to record upload in history", "filename", filename, "error", err)
	}

	logger.L.Info("ProcessUpload END", "declarations", len(summaries), "duration", time.Since(overallStartTime))
	return summaries, nil
}

func (s *declarationServiceImpl) GetDeclarationResult(numeroDI string) (*models.DeclarationResult, error) {
	cacheKey := fmt.Sprintf(ckDeclarationResult, numeroDI)
	if cached, found := s.resultCache.Get(cacheKey); found {
		return cached.(*models.DeclarationResult), nil
	}
	result, err := model.GetDeclarationResult(database.DB, numeroDI)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDeclarationNotFound, numeroDI)
		}
		return nil, fmt.Errorf("failed to load declaration %s: %w", numeroDI, err)
	}
	s.resultCache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

func (s *declarationServiceImpl) ListDeclarations() ([]model.DeclarationSummary, error) {
	if cached, found := s.resultCache.Get(ckDeclarationList); found {
		return cached.([]model.DeclarationSummary), nil
	}
	summaries, err := model.ListDeclarationSummaries(database.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to list declarations: %w", err)
	}
	s.resultCache.Set(ckDeclarationList, summaries, cache.DefaultExpiration)
	return summaries, nil
}

func (s *declarationServiceImpl) DeleteDeclaration(numeroDI string) error {
	affected, err := model.DeleteDeclarationByNumero(database.DB, numeroDI)
	if err != nil {
		return fmt.Errorf("failed to delete declaration %s: %w", numeroDI, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrDeclarationNotFound, numeroDI)
	}
	s.InvalidateDeclarationCache(numeroDI)
	logger.L.Info("Declaration deleted", "numeroDI", numeroDI)
	return nil
}

// ValidateEligibility delegates to the incentive processor. Errors come back
// untranslated so callers can inspect the structured kinds.
func (s *declarationServiceImpl) ValidateEligibility(uf, programCode string, ncms []string) (models.EligibilityResult, error) {
	return s.incentiveProcessor.ValidateEligibility(uf, programCode, ncms)
}

func (s *declarationServiceImpl) CalculateNFFields(numeroDI, programCode string) ([]models.NFFields, error) {
	cacheKey := fmt.Sprintf(ckNFFields, numeroDI, programCode)
	if cached, found := s.resultCache.Get(cacheKey); found {
		return cached.([]models.NFFields), nil
	}

	result, err := s.GetDeclarationResult(numeroDI)
	if err != nil {
		return nil, err
	}
	fields, err := s.incentiveProcessor.CalculateNFFields(&result.Declaration, programCode)
	if err != nil {
		return nil, err
	}
	if err := model.SaveNFFields(database.DB, numeroDI, fields); err != nil {
		return nil, fmt.Errorf("failed to persist NF fields for %s: %w", numeroDI, err)
	}
	s.resultCache.Set(cacheKey, fields, cache.DefaultExpiration)
	return fields, nil
}

func (s *declarationServiceImpl) GetNFFieldHistory(numeroDI string) ([]model.NFFieldRow, error) {
	rows, err := model.ListNFFields(database.DB, numeroDI)
	if err != nil {
		return nil, fmt.Errorf("failed to load NF field history for %s: %w", numeroDI, err)
	}
	return rows, nil
}

func (s *declarationServiceImpl) ListPrograms() []models.ProgramView {
	programs := s.tables.ListPrograms()
	views := make([]models.ProgramView, 0, len(programs))
	for _, p := range programs {
		views = append(views, models.ProgramView{
			UF:     p.UF,
			Code:   p.Code,
			Name:   p.Name,
			PDif:   p.PDif,
			CBenef: p.CBenef,
		})
	}
	return views
}

func (s *declarationServiceImpl) ProjectReformScenarios(startYear int) ([]models.ReformScenario, error) {
	cacheKey := fmt.Sprintf(ckReformScenarios, startYear)
	if cached, found := s.resultCache.Get(cacheKey); found {
		return cached.([]models.ReformScenario), nil
	}
	scenarios, err := s.reformProcessor.ProjectScenarios(startYear)
	if err != nil {
		return nil, err
	}
	// O cronograma é imutável durante a vida do processo.
	s.resultCache.Set(cacheKey, scenarios, cache.NoExpiration)
	return scenarios, nil
}

func (s *declarationServiceImpl) InvalidateDeclarationCache(numeroDI string) {
	s.resultCache.Delete(fmt.Sprintf(ckDeclarationResult, numeroDI))
	s.resultCache.Delete(ckDeclarationList)
	nfPrefix := fmt.Sprintf(ckNFFieldsPrefix, numeroDI)
	for key := range s.resultCache.Items() {
		if strings.HasPrefix(key, nfPrefix) {
			s.resultCache.Delete(key)
		}
	}
}

// sanitizeDeclaration scrubs the free-text fields lifted from the extract
// before they are persisted or echoed back to clients.
func sanitizeDeclaration(decl *models.Declaration) {
	decl.Importer.Name = validation.SanitizeText(validation.StripUnprintable(decl.Importer.Name))
	for i := range decl.Additions {
		products := decl.Additions[i].Products
		for j := range products {
			products[j].Description = validation.SanitizeText(validation.StripUnprintable(products[j].Description))
			products[j].Unit = validation.SanitizeText(validation.StripUnprintable(products[j].Unit))
		}
	}
}

func countProducts(decl *models.Declaration) int {
	total := 0
	for i := range decl.Additions {
		total += len(decl.Additions[i].Products)
	}
	return total
}
