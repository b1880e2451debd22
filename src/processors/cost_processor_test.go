package processors

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func costTestTables() *fiscal.Tables {
	return &fiscal.Tables{
		Regimes: map[fiscal.TaxRegime]fiscal.RegimeRules{
			fiscal.RegimeLucroReal: {
				Regime:              fiscal.RegimeLucroReal,
				AllowsImportCredits: true,
				PISCOFINSCreditPct:  dec("100"),
				IPICredit:           fiscal.CreditIntegral,
				ICMSCredit:          fiscal.CreditIntegral,
			},
			fiscal.RegimeLucroPresumido: {
				Regime:              fiscal.RegimeLucroPresumido,
				AllowsImportCredits: true,
				PISCOFINSCreditPct:  dec("0"),
				IPICredit:           fiscal.CreditIntegral,
				ICMSCredit:          fiscal.CreditIntegral,
			},
			fiscal.RegimeSimplesNacional: {
				Regime:              fiscal.RegimeSimplesNacional,
				AllowsImportCredits: false,
				PISCOFINSCreditPct:  dec("0"),
				IPICredit:           fiscal.CreditNone,
				ICMSCredit:          fiscal.CreditNone,
			},
		},
		NCMRules: []fiscal.NCMCategoryRule{
			{Prefix: "2710", Category: "combustiveis", Monophasic: true},
		},
	}
}

// scenarioAddition builds the reference addition: customs value 100,000 with
// II 2,000, IPI 1,500, PIS 1,650, COFINS 7,600 and ICMS 0.
func scenarioAddition() models.Addition {
	customs := dec("100000")
	return models.Addition{
		Number:       "001",
		NCM:          "85176259",
		CustomsValue: &customs,
		Freight:      dec("0"),
		Insurance:    dec("0"),
		Expenses:     dec("0"),
		Taxes: models.TaxAmounts{
			models.TaxII:     dec("2000"),
			models.TaxIPI:    dec("1500"),
			models.TaxPIS:    dec("1650"),
			models.TaxCOFINS: dec("7600"),
			models.TaxICMS:   dec("0"),
		},
	}
}

func TestComputeCostLayers_RegimeCredits(t *testing.T) {
	processor := NewCostProcessor(costTestTables(), NewNCMClassifier(costTestTables()))

	tests := []struct {
		name             string
		regime           fiscal.TaxRegime
		wantBase         string
		wantDisbursement string
	}{
		// Não-cumulativo credita PIS, COFINS e IPI: 112.750 - 1.650 - 7.600 - 1.500.
		{"lucro real", fiscal.RegimeLucroReal, "112750", "102000"},
		// Cumulativo credita apenas o IPI.
		{"lucro presumido", fiscal.RegimeLucroPresumido, "112750", "111250"},
		// Simplificado não credita nada: desembolso igual à base.
		{"simples nacional", fiscal.RegimeSimplesNacional, "112750", "112750"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addition := scenarioAddition()
			layers, err := processor.ComputeCostLayers(&addition, dec("1"), tt.regime, models.ExtraCosts{})
			if err != nil {
				t.Fatalf("ComputeCostLayers failed: %v", err)
			}
			if !layers.Base.Equal(dec(tt.wantBase)) {
				t.Errorf("base = %s, want %s", layers.Base, tt.wantBase)
			}
			if !layers.Disbursement.Equal(dec(tt.wantDisbursement)) {
				t.Errorf("disbursement = %s, want %s", layers.Disbursement, tt.wantDisbursement)
			}
			if layers.Disbursement.GreaterThan(layers.Base) {
				t.Errorf("disbursement %s exceeds base %s", layers.Disbursement, layers.Base)
			}
			// Sem ajustes externos as duas últimas camadas coincidem com o desembolso.
			if !layers.Accounting.Equal(layers.Disbursement) {
				t.Errorf("accounting = %s, want %s", layers.Accounting, layers.Disbursement)
			}
			if !layers.PriceFormation.Equal(layers.Accounting) {
				t.Errorf("price formation = %s, want %s", layers.PriceFormation, layers.Accounting)
			}
		})
	}
}

func TestComputeCostLayers_ExtrasFlowThroughUpperLayers(t *testing.T) {
	processor := NewCostProcessor(costTestTables(), NewNCMClassifier(costTestTables()))
	addition := scenarioAddition()
	extras := models.ExtraCosts{
		FinancialCharges:   dec("500"),
		RecoverableTaxAdj:  dec("200"),
		IndirectAllocation: dec("300"),
		OperatingMargin:    dec("1000"),
	}

	layers, err := processor.ComputeCostLayers(&addition, dec("1"), fiscal.RegimeLucroReal, extras)
	if err != nil {
		t.Fatalf("ComputeCostLayers failed: %v", err)
	}

	if !layers.Disbursement.Equal(dec("102000")) {
		t.Fatalf("disbursement = %s, want 102000", layers.Disbursement)
	}
	if !layers.Accounting.Equal(dec("102300")) {
		t.Errorf("accounting = %s, want 102300 (102000 + 500 - 200)", layers.Accounting)
	}
	if !layers.PriceFormation.Equal(dec("103600")) {
		t.Errorf("price formation = %s, want 103600 (102300 + 300 + 1000)", layers.PriceFormation)
	}
}

func TestComputeCostLayers_Idempotence(t *testing.T) {
	processor := NewCostProcessor(costTestTables(), NewNCMClassifier(costTestTables()))
	addition := scenarioAddition()

	first, err := processor.ComputeCostLayers(&addition, dec("0.5"), fiscal.RegimeLucroReal, models.ExtraCosts{})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := processor.ComputeCostLayers(&addition, dec("0.5"), fiscal.RegimeLucroReal, models.ExtraCosts{})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if !first.Base.Equal(second.Base) || !first.Disbursement.Equal(second.Disbursement) ||
		!first.Accounting.Equal(second.Accounting) || !first.PriceFormation.Equal(second.PriceFormation) {
		t.Errorf("repeated call diverged: first %+v, second %+v", first, second)
	}
}

func TestComputeCostLayers_MissingFields(t *testing.T) {
	processor := NewCostProcessor(costTestTables(), NewNCMClassifier(costTestTables()))

	tests := []struct {
		name      string
		mutate    func(*models.Addition)
		wantField string
	}{
		{"customs value absent", func(a *models.Addition) { a.CustomsValue = nil }, "valor_aduaneiro"},
		{"ii absent", func(a *models.Addition) { delete(a.Taxes, models.TaxII) }, "ii"},
		{"icms absent", func(a *models.Addition) { delete(a.Taxes, models.TaxICMS) }, "icms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addition := scenarioAddition()
			tt.mutate(&addition)

			_, err := processor.ComputeCostLayers(&addition, dec("1"), fiscal.RegimeLucroReal, models.ExtraCosts{})
			var missing *fiscal.MissingFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("error = %v, want MissingFieldError", err)
			}
			if missing.Field != tt.wantField {
				t.Errorf("missing field = %q, want %q", missing.Field, tt.wantField)
			}
			if missing.Ref != "adicao 001" {
				t.Errorf("missing ref = %q, want %q", missing.Ref, "adicao 001")
			}
		})
	}
}

func TestComputeCostLayers_ExplicitZeroIsNotMissing(t *testing.T) {
	processor := NewCostProcessor(costTestTables(), NewNCMClassifier(costTestTables()))
	addition := scenarioAddition()
	// ICMS já é zero explícito no cenário; o cálculo tem de aceitar.
	if _, err := processor.ComputeCostLayers(&addition, dec("1"), fiscal.RegimeLucroReal, models.ExtraCosts{}); err != nil {
		t.Fatalf("explicit zero treated as missing: %v", err)
	}
}

func TestComputeCostLayers_ShareOutsideRange(t *testing.T) {
	processor := NewCostProcessor(costTestTables(), NewNCMClassifier(costTestTables()))
	for _, share := range []string{"-0.1", "1.01"} {
		addition := scenarioAddition()
		if _, err := processor.ComputeCostLayers(&addition, dec(share), fiscal.RegimeLucroReal, models.ExtraCosts{}); err == nil {
			t.Errorf("share %s accepted, want error", share)
		}
	}
}

func TestComputeCostLayers_UnknownRegime(t *testing.T) {
	processor := NewCostProcessor(costTestTables(), NewNCMClassifier(costTestTables()))
	addition := scenarioAddition()

	_, err := processor.ComputeCostLayers(&addition, dec("1"), fiscal.TaxRegime("mei"), models.ExtraCosts{})
	var missing *fiscal.MissingConfigurationError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %v, want MissingConfigurationError", err)
	}
}

func TestProcess_SplitsByLineValueAndClassifies(t *testing.T) {
	tables := costTestTables()
	processor := NewCostProcessor(tables, NewNCMClassifier(tables))

	addition := scenarioAddition()
	addition.Products = []models.Product{
		{Sequence: 1, Description: "Oleo lubrificante", NCM: "27101259", Quantity: dec("2"), UnitPrice: dec("150")},
		{Sequence: 2, Description: "Modulo eletronico", NCM: "85176259", Quantity: dec("1"), UnitPrice: dec("100")},
	}
	decl := models.Declaration{
		NumeroDI:  "2501234567",
		Importer:  models.Importer{Name: "Importadora Alfa", CNPJ: "11222333000181", UF: "SC"},
		Additions: []models.Addition{addition},
	}

	totals, err := processor.Process(&decl, fiscal.RegimeLucroReal, models.ExtraCosts{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !totals.Base.Equal(dec("112750")) {
		t.Errorf("declaration base = %s, want 112750", totals.Base)
	}

	got := decl.Additions[0]
	if got.CostLayers == nil {
		t.Fatal("addition cost layers not attached")
	}
	p1, p2 := got.Products[0], got.Products[1]
	if p1.CostLayers == nil || p2.CostLayers == nil {
		t.Fatal("product cost layers not attached")
	}

	// Valores de linha 300 e 100: quotas 0,75 e 0,25.
	if !p1.CostLayers.Base.Equal(dec("84562.5")) {
		t.Errorf("product 1 base = %s, want 84562.5", p1.CostLayers.Base)
	}
	if !p2.CostLayers.Base.Equal(dec("28187.5")) {
		t.Errorf("product 2 base = %s, want 28187.5", p2.CostLayers.Base)
	}
	if !p1.CostLayers.Base.Add(p2.CostLayers.Base).Equal(got.CostLayers.Base) {
		t.Errorf("product bases %s + %s do not reproduce addition base %s",
			p1.CostLayers.Base, p2.CostLayers.Base, got.CostLayers.Base)
	}

	if p1.Category != "combustiveis" || !p1.IsMonophasic {
		t.Errorf("product 1 classified as (%q, %v), want (combustiveis, true)", p1.Category, p1.IsMonophasic)
	}
	if p2.Category != "" || p2.IsMonophasic {
		t.Errorf("product 2 classified as (%q, %v), want no category", p2.Category, p2.IsMonophasic)
	}
}

func TestProcess_EqualSplitWithoutLineValues(t *testing.T) {
	tables := costTestTables()
	processor := NewCostProcessor(tables, NewNCMClassifier(tables))

	addition := scenarioAddition()
	addition.Products = []models.Product{
		{Sequence: 1, NCM: "85176259", Quantity: dec("0"), UnitPrice: dec("0")},
		{Sequence: 2, NCM: "85176259", Quantity: dec("0"), UnitPrice: dec("0")},
	}
	decl := models.Declaration{NumeroDI: "2501234567", Additions: []models.Addition{addition}}

	if _, err := processor.Process(&decl, fiscal.RegimeSimplesNacional, models.ExtraCosts{}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	half := dec("56375") // 112750 / 2
	for i, product := range decl.Additions[0].Products {
		if !product.CostLayers.Base.Equal(half) {
			t.Errorf("product %d base = %s, want %s", i+1, product.CostLayers.Base, half)
		}
	}
}

func TestProcess_ProductWithoutNCMFails(t *testing.T) {
	tables := costTestTables()
	processor := NewCostProcessor(tables, NewNCMClassifier(tables))

	addition := scenarioAddition()
	addition.Products = []models.Product{
		{Sequence: 1, Description: "Sem classificacao", NCM: "", Quantity: dec("1"), UnitPrice: dec("10")},
	}
	decl := models.Declaration{NumeroDI: "2501234567", Additions: []models.Addition{addition}}

	_, err := processor.Process(&decl, fiscal.RegimeLucroReal, models.ExtraCosts{})
	var missing *fiscal.MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %v, want MissingFieldError", err)
	}
	if missing.Field != "ncm" {
		t.Errorf("missing field = %q, want %q", missing.Field, "ncm")
	}
}

func TestProcess_SumsAdditions(t *testing.T) {
	tables := costTestTables()
	processor := NewCostProcessor(tables, NewNCMClassifier(tables))

	first := scenarioAddition()
	second := scenarioAddition()
	second.Number = "002"
	decl := models.Declaration{NumeroDI: "2501234567", Additions: []models.Addition{first, second}}

	totals, err := processor.Process(&decl, fiscal.RegimeLucroReal, models.ExtraCosts{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !totals.Base.Equal(dec("225500")) {
		t.Errorf("totals base = %s, want 225500", totals.Base)
	}
	if !totals.Disbursement.Equal(dec("204000")) {
		t.Errorf("totals disbursement = %s, want 204000", totals.Disbursement)
	}
}
