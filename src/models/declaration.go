// src/models/declaration.go
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TaxKind identifies one of the five import taxes carried per addition.
type TaxKind string

const (
	TaxII     TaxKind = "ii"
	TaxIPI    TaxKind = "ipi"
	TaxPIS    TaxKind = "pis"
	TaxCOFINS TaxKind = "cofins"
	TaxICMS   TaxKind = "icms"
)

// AllTaxKinds lists every tax kind in the fixed order used for presence
// checks and deterministic iteration.
var AllTaxKinds = []TaxKind{TaxII, TaxIPI, TaxPIS, TaxCOFINS, TaxICMS}

// TaxAmounts maps tax kind to the amount due on an addition. A kind absent
// from the map means the amount was never supplied, which is different from
// an explicit zero.
type TaxAmounts map[TaxKind]decimal.Decimal

// Get returns the amount for a kind and whether it was present at all.
func (t TaxAmounts) Get(kind TaxKind) (decimal.Decimal, bool) {
	v, ok := t[kind]
	return v, ok
}

// Importer identifies the declarant of the import declaration.
type Importer struct {
	Name string `json:"nome"`
	CNPJ string `json:"cnpj"`
	UF   string `json:"uf"`
}

// Declaration is one import declaration (DI) as delivered by parsing: a
// header plus its additions. Built once, never mutated afterwards except to
// attach the derived fields (category, cost layers) computed downstream.
type Declaration struct {
	NumeroDI         string     `json:"numero_di"`
	Importer         Importer   `json:"importador"`
	RegistrationDate time.Time  `json:"data_registro"`
	Additions        []Addition `json:"adicoes"`
}

// Addition is one declared import line. CustomsValue is a pointer so that a
// value the source never carried is distinguishable from an explicit zero;
// the five tax amounts get the same treatment through map presence.
type Addition struct {
	Number       string           `json:"numero_adicao"`
	NCM          string           `json:"ncm"`
	CustomsValue *decimal.Decimal `json:"valor_aduaneiro"`
	Freight      decimal.Decimal  `json:"frete"`
	Insurance    decimal.Decimal  `json:"seguro"`
	Expenses     decimal.Decimal  `json:"despesas_aduaneiras"`
	Taxes        TaxAmounts       `json:"tributos"`
	Products     []Product        `json:"produtos"`

	// Preenchido pelo motor de custos para a adição como um todo.
	CostLayers *CostLayers `json:"custos,omitempty"`
}

// Ref returns the identifier used in error reports for this addition.
func (a *Addition) Ref() string {
	return fmt.Sprintf("adicao %s", a.Number)
}

// Product is one merchandise item inside an addition. Category,
// IsMonophasic and CostLayers are derived fields attached by the engine.
type Product struct {
	Sequence    int             `json:"sequencial"`
	Description string          `json:"descricao"`
	NCM         string          `json:"ncm"`
	Quantity    decimal.Decimal `json:"quantidade"`
	Unit        string          `json:"unidade,omitempty"`
	UnitPrice   decimal.Decimal `json:"preco_unitario"`

	Category     string      `json:"categoria,omitempty"`
	IsMonophasic bool        `json:"monofasico"`
	CostLayers   *CostLayers `json:"custos,omitempty"`
}

// Ref returns the identifier used in error reports for this product.
func (p *Product) Ref(addition *Addition) string {
	return fmt.Sprintf("adicao %s produto %d", addition.Number, p.Sequence)
}
