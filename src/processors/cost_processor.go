// src/processors/cost_processor.go
package processors

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/models"
)

var (
	oneHundred = decimal.NewFromInt(100)
	one        = decimal.NewFromInt(1)
)

// costProcessorImpl implements the CostProcessor interface: the four-layer
// cost chain computed per product and per addition, with regime-dependent
// credits resolved against the fiscal snapshot.
type costProcessorImpl struct {
	tables     *fiscal.Tables
	classifier NCMClassifier
}

// NewCostProcessor creates a new instance of CostProcessor.
func NewCostProcessor(tables *fiscal.Tables, classifier NCMClassifier) CostProcessor {
	return &costProcessorImpl{tables: tables, classifier: classifier}
}

// ComputeCostLayers builds the chain for one addition slice:
//
//	base          = valor aduaneiro + II + IPI + PIS + COFINS + ICMS + despesas
//	desembolso    = base - créditos permitidos pelo regime
//	contábil      = desembolso + encargos financeiros - ajuste de recuperáveis
//	formação      = contábil + rateio de indiretos + margem operacional
//
// Every term is linear, so the productShare multiplication happens once at
// the end and the chain itself never rounds.
func (p *costProcessorImpl) ComputeCostLayers(addition *models.Addition, productShare decimal.Decimal, regime fiscal.TaxRegime, extras models.ExtraCosts) (models.CostLayers, error) {
	if productShare.LessThan(decimal.Zero) || productShare.GreaterThan(one) {
		return models.CostLayers{}, fmt.Errorf("product share %s outside [0,1] for %s", productShare, addition.Ref())
	}
	rules, err := p.tables.RulesFor(regime)
	if err != nil {
		return models.CostLayers{}, err
	}

	customs, taxes, err := requiredAmounts(addition)
	if err != nil {
		return models.CostLayers{}, err
	}

	base := customs.
		Add(taxes[models.TaxII]).
		Add(taxes[models.TaxIPI]).
		Add(taxes[models.TaxPIS]).
		Add(taxes[models.TaxCOFINS]).
		Add(taxes[models.TaxICMS]).
		Add(addition.Expenses)

	disbursement := base.Sub(creditsFor(rules, taxes))

	accounting := disbursement.
		Add(extras.FinancialCharges).
		Sub(extras.RecoverableTaxAdj)

	priceFormation := accounting.
		Add(extras.IndirectAllocation).
		Add(extras.OperatingMargin)

	return models.CostLayers{
		Base:           base.Mul(productShare),
		Disbursement:   disbursement.Mul(productShare),
		Accounting:     accounting.Mul(productShare),
		PriceFormation: priceFormation.Mul(productShare),
	}, nil
}

// creditsFor returns the total recoverable credit under the regime rules.
// The credit set comes from the regime table, never from caller input, so a
// regime cannot be talked into crediting a tax kind it disallows.
func creditsFor(rules fiscal.RegimeRules, taxes map[models.TaxKind]decimal.Decimal) decimal.Decimal {
	if !rules.AllowsImportCredits {
		return decimal.Zero
	}
	credits := taxes[models.TaxPIS].
		Add(taxes[models.TaxCOFINS]).
		Mul(rules.PISCOFINSCreditPct).
		Div(oneHundred)
	if rules.IPICredit == fiscal.CreditIntegral {
		credits = credits.Add(taxes[models.TaxIPI])
	}
	return credits
}

// requiredAmounts extracts the six monetary amounts of an addition, failing
// on the first absent one. Presence is what matters: an explicit zero is a
// legitimate amount, a missing key never is.
func requiredAmounts(addition *models.Addition) (decimal.Decimal, map[models.TaxKind]decimal.Decimal, error) {
	if addition.CustomsValue == nil {
		return decimal.Decimal{}, nil, &fiscal.MissingFieldError{Field: "valor_aduaneiro", Ref: addition.Ref()}
	}
	taxes := make(map[models.TaxKind]decimal.Decimal, len(models.AllTaxKinds))
	for _, kind := range models.AllTaxKinds {
		amount, ok := addition.Taxes.Get(kind)
		if !ok {
			return decimal.Decimal{}, nil, &fiscal.MissingFieldError{Field: string(kind), Ref: addition.Ref()}
		}
		taxes[kind] = amount
	}
	return *addition.CustomsValue, taxes, nil
}

// Process classifies every product, computes layers per product and per
// addition and returns the declaration-level totals. Products share their
// addition's amounts in proportion to line value (unit price x quantity);
// when an addition declares no line values at all the split is equal.
func (p *costProcessorImpl) Process(decl *models.Declaration, regime fiscal.TaxRegime, extras models.ExtraCosts) (models.CostLayers, error) {
	var totals models.CostLayers
	for i := range decl.Additions {
		addition := &decl.Additions[i]

		for j := range addition.Products {
			product := &addition.Products[j]
			if NormalizeNCM(product.NCM) == "" {
				return models.CostLayers{}, &fiscal.MissingFieldError{Field: "ncm", Ref: product.Ref(addition)}
			}
			product.Category, product.IsMonophasic = p.classifier.Classify(product.NCM)
		}

		layers, err := p.ComputeCostLayers(addition, one, regime, extras)
		if err != nil {
			return models.CostLayers{}, err
		}
		addition.CostLayers = &layers

		if err := p.attachProductLayers(addition, regime, extras); err != nil {
			return models.CostLayers{}, err
		}

		totals = sumLayers(totals, layers)
	}
	return totals, nil
}

func (p *costProcessorImpl) attachProductLayers(addition *models.Addition, regime fiscal.TaxRegime, extras models.ExtraCosts) error {
	if len(addition.Products) == 0 {
		return nil
	}
	totalValue := decimal.Zero
	for j := range addition.Products {
		totalValue = totalValue.Add(lineValue(&addition.Products[j]))
	}
	equalShare := one.Div(decimal.NewFromInt(int64(len(addition.Products))))

	for j := range addition.Products {
		product := &addition.Products[j]
		share := equalShare
		if totalValue.IsPositive() {
			share = lineValue(product).Div(totalValue)
		}
		layers, err := p.ComputeCostLayers(addition, share, regime, extras)
		if err != nil {
			return err
		}
		product.CostLayers = &layers
	}
	return nil
}

func lineValue(p *models.Product) decimal.Decimal {
	return p.UnitPrice.Mul(p.Quantity)
}

func sumLayers(a, b models.CostLayers) models.CostLayers {
	return models.CostLayers{
		Base:           a.Base.Add(b.Base),
		Disbursement:   a.Disbursement.Add(b.Disbursement),
		Accounting:     a.Accounting.Add(b.Accounting),
		PriceFormation: a.PriceFormation.Add(b.PriceFormation),
	}
}
