package fiscal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxRegime identifies the federal taxation regime of the importer. The set
// is closed: configuration files may parameterize the three known regimes
// but cannot introduce new ones.
type TaxRegime string

const (
	RegimeLucroReal       TaxRegime = "lucro_real"       // não-cumulativo
	RegimeLucroPresumido  TaxRegime = "lucro_presumido"  // cumulativo
	RegimeSimplesNacional TaxRegime = "simples_nacional" // simplificado
)

// IsValid reports whether the regime is one of the three known variants.
func (r TaxRegime) IsValid() bool {
	switch r {
	case RegimeLucroReal, RegimeLucroPresumido, RegimeSimplesNacional:
		return true
	}
	return false
}

// CreditPolicy is the closed set of per-tax credit policies a regime entry
// may declare.
type CreditPolicy string

const (
	CreditIntegral CreditPolicy = "integral"
	CreditNone     CreditPolicy = "none"
)

func (p CreditPolicy) IsValid() bool {
	return p == CreditIntegral || p == CreditNone
}

// RegimeRules carries the credit model of one regime: whether import-tax
// credits are recoverable at all, the share of PIS/COFINS paid on import
// that is creditable (percent, 0-100) and the IPI/ICMS credit policies.
type RegimeRules struct {
	Regime              TaxRegime       `yaml:"regime"`
	AllowsImportCredits bool            `yaml:"permite_creditos"`
	PISCOFINSCreditPct  decimal.Decimal `yaml:"credito_piscofins_pct"`
	IPICredit           CreditPolicy    `yaml:"credito_ipi"`
	ICMSCredit          CreditPolicy    `yaml:"credito_icms"`
	Notes               string          `yaml:"observacao,omitempty"`
}

func (r RegimeRules) validate() error {
	if !r.Regime.IsValid() {
		return fmt.Errorf("unknown regime id %q", r.Regime)
	}
	if !r.IPICredit.IsValid() {
		return fmt.Errorf("regime %s: invalid IPI credit policy %q", r.Regime, r.IPICredit)
	}
	if !r.ICMSCredit.IsValid() {
		return fmt.Errorf("regime %s: invalid ICMS credit policy %q", r.Regime, r.ICMSCredit)
	}
	if r.PISCOFINSCreditPct.LessThan(decimal.Zero) || r.PISCOFINSCreditPct.GreaterThan(hundred) {
		return fmt.Errorf("regime %s: PIS/COFINS credit percent must lie in [0,100]", r.Regime)
	}
	if !r.AllowsImportCredits {
		// Um regime sem direito a créditos não pode declarar políticas de crédito.
		if !r.PISCOFINSCreditPct.IsZero() || r.IPICredit != CreditNone || r.ICMSCredit != CreditNone {
			return fmt.Errorf("regime %s: credits declared but permite_creditos is false", r.Regime)
		}
	}
	return nil
}
