// src/processors/incentive_processor.go
package processors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/models"
)

// Machine-readable reason tags consumed by the presentation layer.
const (
	ReasonEligible   = "Programa elegível"
	ReasonRestricted = "NCMs restritos"
)

// CSTDeferral is the compliance code signalling partial/total ICMS deferral
// on the outgoing fiscal document.
const CSTDeferral = "51"

// incentiveProcessorImpl implements the IncentiveProcessor interface over
// the incentive program registry and the state ICMS rate table.
type incentiveProcessorImpl struct {
	tables *fiscal.Tables
}

// NewIncentiveProcessor creates a new instance of IncentiveProcessor bound
// to a fiscal configuration snapshot.
func NewIncentiveProcessor(tables *fiscal.Tables) IncentiveProcessor {
	return &incentiveProcessorImpl{tables: tables}
}

// ValidateEligibility checks every NCM against the vedation ruleset of the
// program registered for (uf, programCode). The result lists every NCM that
// matched a rule, not just the first, so the caller reports all violations
// at once. An unregistered pair fails with UnknownProgramError; an unknown
// state is simply a pair that was never registered.
func (p *incentiveProcessorImpl) ValidateEligibility(uf, programCode string, ncms []string) (models.EligibilityResult, error) {
	program, err := p.tables.Program(uf, programCode)
	if err != nil {
		return models.EligibilityResult{}, err
	}

	restricted := make([]string, 0, len(ncms))
	for _, ncm := range ncms {
		if matchesVedation(program.Vedations, NormalizeNCM(ncm)) {
			restricted = append(restricted, ncm)
		}
	}

	if len(restricted) > 0 {
		return models.EligibilityResult{
			Eligible:       false,
			Reason:         ReasonRestricted,
			RestrictedNCMs: restricted,
		}, nil
	}
	return models.EligibilityResult{
		Eligible:       true,
		Reason:         ReasonEligible,
		RestrictedNCMs: restricted,
	}, nil
}

// matchesVedation reports whether a normalized NCM falls under a blacklist
// entry (exact code or prefix) or a wildcard pattern such as "87*".
func matchesVedation(rules fiscal.VedationRuleset, code string) bool {
	if code == "" {
		return false
	}
	for _, entry := range rules.Blacklist {
		if strings.HasPrefix(code, entry) {
			return true
		}
	}
	for _, pattern := range rules.Wildcards {
		prefix := strings.TrimSuffix(pattern, "*")
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// CalculateNFFields computes the ICMS deferral fields of every addition for
// the program registered under the importer's state:
//
//	vBC      = (valor aduaneiro + II + IPI + PIS + COFINS + despesas) / (1 - alíquota)
//	vICMSOp  = vBC x alíquota
//	vICMSDif = vICMSOp x pDif
//	vICMS    = vICMSOp - vICMSDif
//
// vICMS is derived by subtraction after rounding, so vICMSDif + vICMS always
// reproduces vICMSOp exactly. These fields land on fiscal documents, which
// is why they are the one place the engine rounds to cents.
func (p *incentiveProcessorImpl) CalculateNFFields(decl *models.Declaration, programCode string) ([]models.NFFields, error) {
	uf := decl.Importer.UF
	program, err := p.tables.Program(uf, programCode)
	if err != nil {
		return nil, err
	}
	if program.PDif.LessThan(decimal.Zero) || program.PDif.GreaterThan(oneHundred) {
		return nil, &fiscal.MissingConfigurationError{
			Entry:  uf + "/" + programCode,
			Detail: "p_dif outside [0,100]",
		}
	}

	rate, err := p.tables.ICMSRate(uf)
	if err != nil {
		// Programa registado mas sem alíquota para a UF: configuração incompleta.
		var unknownState *fiscal.UnknownStateError
		if errors.As(err, &unknownState) {
			return nil, &fiscal.MissingConfigurationError{
				Entry:  uf + "/" + programCode,
				Detail: fmt.Sprintf("nominal ICMS rate for UF %s absent", uf),
			}
		}
		return nil, err
	}

	if len(decl.Additions) == 0 {
		return nil, &fiscal.MissingFieldError{Field: "adicoes", Ref: "declaracao " + decl.NumeroDI}
	}

	fields := make([]models.NFFields, 0, len(decl.Additions))
	for i := range decl.Additions {
		addition := &decl.Additions[i]

		if _, ok := addition.Taxes.Get(models.TaxICMS); !ok {
			return nil, &fiscal.MissingConfigurationError{
				Entry:  addition.Ref(),
				Detail: "ICMS amount absent from the addition's tax map",
			}
		}
		customs, taxes, err := requiredAmounts(addition)
		if err != nil {
			return nil, err
		}

		// Base "por dentro": o ICMS integra a própria base.
		taxedBase := customs.
			Add(taxes[models.TaxII]).
			Add(taxes[models.TaxIPI]).
			Add(taxes[models.TaxPIS]).
			Add(taxes[models.TaxCOFINS]).
			Add(addition.Expenses)
		divisor := one.Sub(rate.Div(oneHundred))

		vBC := taxedBase.Div(divisor).Round(2)
		vICMSOp := vBC.Mul(rate).Div(oneHundred).Round(2)
		vICMSDif := vICMSOp.Mul(program.PDif).Div(oneHundred).Round(2)
		vICMS := vICMSOp.Sub(vICMSDif)

		fields = append(fields, models.NFFields{
			AdditionNumber: addition.Number,
			Program:        program.Code,
			CST:            CSTDeferral,
			VBC:            vBC,
			VICMSOp:        vICMSOp,
			VICMSDif:       vICMSDif,
			VICMS:          vICMS,
			PDif:           program.PDif,
			CBenef:         program.CBenef,
		})
	}
	return fields, nil
}
