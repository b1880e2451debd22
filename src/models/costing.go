// src/models/costing.go
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/custoimport/src/fiscal"
)

// CostLayers carries the four progressively-adjusted cost figures computed
// for a product or an addition. Values keep full precision through the
// chain; rounding happens only when they are presented or exported.
type CostLayers struct {
	Base           decimal.Decimal `json:"custo_base"`
	Disbursement   decimal.Decimal `json:"custo_desembolso"`
	Accounting     decimal.Decimal `json:"custo_contabil"`
	PriceFormation decimal.Decimal `json:"base_formacao_preco"`
}

// ExtraCosts are the externally supplied adjustments consumed by the third
// and fourth layers. They default to zero when the caller configures none.
type ExtraCosts struct {
	FinancialCharges   decimal.Decimal `json:"encargos_financeiros"`
	RecoverableTaxAdj  decimal.Decimal `json:"ajuste_tributos_recuperaveis"`
	IndirectAllocation decimal.Decimal `json:"rateio_custos_indiretos"`
	OperatingMargin    decimal.Decimal `json:"margem_operacional"`
}

// NFFields are the ICMS deferral fields stamped on the outgoing fiscal
// document when an incentive program applies. Tags follow the literal NFe
// field names so the JSON is usable as-is by document emitters.
type NFFields struct {
	AdditionNumber string          `json:"numero_adicao"`
	Program        string          `json:"programa"`
	CST            string          `json:"cst"`
	VBC            decimal.Decimal `json:"vBC"`
	VICMSOp        decimal.Decimal `json:"vICMSOp"`
	VICMSDif       decimal.Decimal `json:"vICMSDif"`
	VICMS          decimal.Decimal `json:"vICMS"`
	PDif           decimal.Decimal `json:"pDif"`
	CBenef         string          `json:"cBenef"`
}

// ReformPhase classifies a year of the tax-reform transition.
type ReformPhase string

const (
	PhaseAtual          ReformPhase = "atual"
	PhaseReducaoGradual ReformPhase = "reducao_gradual"
	PhaseSistemaNovo    ReformPhase = "sistema_novo"
)

// ReformScenario is one projected year of incentive erosion: how much of
// the ICMS benefit remains and how far the replacement tax has phased in.
type ReformScenario struct {
	Year           int             `json:"ano"`
	RetentionPct   decimal.Decimal `json:"retencao_beneficio_pct"`
	ReplacementPct decimal.Decimal `json:"imposto_substituto_pct"`
	Phase          ReformPhase     `json:"fase"`
}

// EligibilityResult reports whether a set of NCMs may enter an incentive
// program, listing every NCM that matched a vedation rule.
type EligibilityResult struct {
	Eligible       bool     `json:"elegivel"`
	Reason         string   `json:"motivo"`
	RestrictedNCMs []string `json:"ncms_restritos"`
}

// ProgramView is the API projection of a registered incentive program.
type ProgramView struct {
	UF     string          `json:"uf"`
	Code   string          `json:"codigo"`
	Name   string          `json:"nome"`
	PDif   decimal.Decimal `json:"p_dif"`
	CBenef string          `json:"c_benef"`
}

// DeclarationResult is the computed outcome for one declaration: the
// enriched declaration plus its regime and declaration-level totals.
type DeclarationResult struct {
	Declaration Declaration      `json:"declaracao"`
	Regime      fiscal.TaxRegime `json:"regime"`
	Totals      CostLayers       `json:"totais"`
	ProcessedAt time.Time        `json:"processado_em"`
}

// UploadSummary is what the upload endpoint returns to the client.
type UploadSummary struct {
	NumeroDI      string           `json:"numero_di"`
	Regime        fiscal.TaxRegime `json:"regime"`
	AdditionCount int              `json:"total_adicoes"`
	ProductCount  int              `json:"total_produtos"`
	Totals        CostLayers       `json:"totais"`
}
