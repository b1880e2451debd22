// src/processors/interfaces.go
package processors

import (
	"github.com/shopspring/decimal"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/models"
)

// NCMClassifier maps a tariff code to its product category and monophasic
// PIS/COFINS flag.
type NCMClassifier interface {
	Classify(ncm string) (category string, isMonophasic bool)
}

// CostProcessor computes the four cost layers.
type CostProcessor interface {
	// ComputeCostLayers returns the layers for the fraction of an addition
	// attributable to one product (productShare in [0,1]; 1 for the whole
	// addition).
	ComputeCostLayers(addition *models.Addition, productShare decimal.Decimal, regime fiscal.TaxRegime, extras models.ExtraCosts) (models.CostLayers, error)
	// Process classifies every product, attaches per-product and
	// per-addition layers and returns the declaration totals.
	Process(decl *models.Declaration, regime fiscal.TaxRegime, extras models.ExtraCosts) (models.CostLayers, error)
}

// IncentiveProcessor validates program eligibility and computes the ICMS
// deferral fields for outgoing fiscal documents.
type IncentiveProcessor interface {
	ValidateEligibility(uf, programCode string, ncms []string) (models.EligibilityResult, error)
	CalculateNFFields(decl *models.Declaration, programCode string) ([]models.NFFields, error)
}

// ReformProcessor projects incentive erosion under the tax-reform schedule.
type ReformProcessor interface {
	ProjectScenarios(startYear int) ([]models.ReformScenario, error)
}
