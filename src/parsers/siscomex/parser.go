// src/parsers/siscomex/parser.go
package siscomex

import (
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/models"
)

// Decimal places used by the SISCOMEX extract layout: monetary values come
// as zero-padded integer strings in centavos, quantities with 5 and unit
// values with 7 fractional digits.
const (
	monetaryDecimals  = 2
	quantityDecimals  = 5
	unitValueDecimals = 7
)

// xmlLista mirrors the top-level structure of a DI extract. One file may
// carry several declarations.
type xmlLista struct {
	XMLName     xml.Name        `xml:"ListaDeclaracoes"`
	Declaracoes []xmlDeclaracao `xml:"declaracaoImportacao"`
}

type xmlDeclaracao struct {
	NumeroDI         string      `xml:"numeroDI"`
	DataRegistro     string      `xml:"dataRegistro"`
	ImportadorNome   string      `xml:"importadorNome"`
	ImportadorNumero string      `xml:"importadorNumero"`
	ImportadorUF     string      `xml:"importadorEnderecoUf"`
	Adicoes          []xmlAdicao `xml:"adicao"`
}

type xmlAdicao struct {
	NumeroAdicao   string          `xml:"numeroAdicao"`
	NCM            string          `xml:"dadosMercadoriaCodigoNcm"`
	ValorAduaneiro string          `xml:"valorAduaneiroReais"`
	Frete          string          `xml:"freteValorReais"`
	Seguro         string          `xml:"seguroValorReais"`
	Despesas       string          `xml:"despesasAduaneirasReais"`
	II             string          `xml:"iiAliquotaValorRecolher"`
	IPI            string          `xml:"ipiAliquotaValorRecolher"`
	PIS            string          `xml:"pisPasepAliquotaValorRecolher"`
	COFINS         string          `xml:"cofinsAliquotaValorRecolher"`
	ICMS           string          `xml:"icmsValorRecolher"`
	Mercadorias    []xmlMercadoria `xml:"mercadoria"`
}

type xmlMercadoria struct {
	Sequencial    string `xml:"numeroSequencialItem"`
	Descricao     string `xml:"descricaoMercadoria"`
	Quantidade    string `xml:"quantidade"`
	UnidadeMedida string `xml:"unidadeMedida"`
	ValorUnitario string `xml:"valorUnitario"`
}

// SiscomexParser implements the parsers.Parser interface for DI extract XML
// files. The extract must carry the cleared ICMS group alongside the four
// federal taxes; an extract without it fails instead of defaulting to zero.
type SiscomexParser struct{}

// NewParser creates a new instance of the SiscomexParser.
func NewParser() *SiscomexParser {
	return &SiscomexParser{}
}

// Parse reads a DI extract and converts every declaration in it. SISCOMEX
// serves these files in ISO-8859-1, so the decoder installs a charset
// reader instead of assuming UTF-8.
func (p *SiscomexParser) Parse(file io.Reader) ([]models.Declaration, error) {
	dec := xml.NewDecoder(file)
	dec.CharsetReader = charsetReader

	var lista xmlLista
	if err := dec.Decode(&lista); err != nil {
		return nil, fmt.Errorf("siscomex parser: failed to decode XML: %w", err)
	}
	if len(lista.Declaracoes) == 0 {
		return nil, fmt.Errorf("siscomex parser: file carries no declaracaoImportacao element")
	}

	declarations := make([]models.Declaration, 0, len(lista.Declaracoes))
	for _, raw := range lista.Declaracoes {
		decl, err := convertDeclaration(raw)
		if err != nil {
			return nil, err
		}
		declarations = append(declarations, *decl)
	}
	return declarations, nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "utf-8", "":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}

func convertDeclaration(raw xmlDeclaracao) (*models.Declaration, error) {
	numeroDI := strings.TrimSpace(raw.NumeroDI)
	if numeroDI == "" {
		return nil, &fiscal.MissingFieldError{Field: "numeroDI", Ref: "declaracaoImportacao"}
	}
	ref := "declaracao " + numeroDI

	uf := strings.ToUpper(strings.TrimSpace(raw.ImportadorUF))
	if uf == "" {
		return nil, &fiscal.MissingFieldError{Field: "importadorEnderecoUf", Ref: ref}
	}
	if len(raw.Adicoes) == 0 {
		return nil, &fiscal.MissingFieldError{Field: "adicao", Ref: ref}
	}

	decl := &models.Declaration{
		NumeroDI: numeroDI,
		Importer: models.Importer{
			Name: strings.TrimSpace(raw.ImportadorNome),
			CNPJ: strings.TrimSpace(raw.ImportadorNumero),
			UF:   uf,
		},
		RegistrationDate: parseRegistrationDate(raw.DataRegistro, numeroDI),
		Additions:        make([]models.Addition, 0, len(raw.Adicoes)),
	}

	for _, rawAdd := range raw.Adicoes {
		addition, err := convertAddition(rawAdd, numeroDI)
		if err != nil {
			return nil, err
		}
		decl.Additions = append(decl.Additions, *addition)
	}
	return decl, nil
}

// parseRegistrationDate tolerates a missing registration date: it is
// informational, unlike the monetary fields.
func parseRegistrationDate(s, numeroDI string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		log.Printf("Siscomex Parser: ignoring invalid dataRegistro %q on DI %s", s, numeroDI)
		return time.Time{}
	}
	return t
}

func convertAddition(raw xmlAdicao, numeroDI string) (*models.Addition, error) {
	number := strings.TrimSpace(raw.NumeroAdicao)
	if number == "" {
		return nil, &fiscal.MissingFieldError{Field: "numeroAdicao", Ref: "declaracao " + numeroDI}
	}
	ref := fmt.Sprintf("adicao %s", number)

	ncm := strings.TrimSpace(raw.NCM)
	if ncm == "" {
		return nil, &fiscal.MissingFieldError{Field: "dadosMercadoriaCodigoNcm", Ref: ref}
	}

	customs, err := requiredMonetary(raw.ValorAduaneiro, "valorAduaneiroReais", ref)
	if err != nil {
		return nil, err
	}

	taxes := make(models.TaxAmounts, len(models.AllTaxKinds))
	for _, field := range []struct {
		kind models.TaxKind
		tag  string
		val  string
	}{
		{models.TaxII, "iiAliquotaValorRecolher", raw.II},
		{models.TaxIPI, "ipiAliquotaValorRecolher", raw.IPI},
		{models.TaxPIS, "pisPasepAliquotaValorRecolher", raw.PIS},
		{models.TaxCOFINS, "cofinsAliquotaValorRecolher", raw.COFINS},
		{models.TaxICMS, "icmsValorRecolher", raw.ICMS},
	} {
		amount, err := requiredMonetary(field.val, field.tag, ref)
		if err != nil {
			return nil, err
		}
		taxes[field.kind] = amount
	}

	addition := &models.Addition{
		Number:       number,
		NCM:          ncm,
		CustomsValue: &customs,
		Freight:      optionalMonetary(raw.Frete),
		Insurance:    optionalMonetary(raw.Seguro),
		Expenses:     optionalMonetary(raw.Despesas),
		Taxes:        taxes,
		Products:     make([]models.Product, 0, len(raw.Mercadorias)),
	}

	for i, rawItem := range raw.Mercadorias {
		product, err := convertProduct(rawItem, i+1, ncm, ref)
		if err != nil {
			return nil, err
		}
		addition.Products = append(addition.Products, *product)
	}
	return addition, nil
}

func convertProduct(raw xmlMercadoria, position int, ncm, additionRef string) (*models.Product, error) {
	seq := position
	if s := strings.TrimSpace(raw.Sequencial); s != "" {
		if parsed, err := decimal.NewFromString(s); err == nil {
			seq = int(parsed.IntPart())
		}
	}
	ref := fmt.Sprintf("%s produto %d", additionRef, seq)

	quantity, err := parsePadded(raw.Quantidade, quantityDecimals)
	if err != nil {
		return nil, &fiscal.MissingFieldError{Field: "quantidade", Ref: ref}
	}
	unitPrice, err := parsePadded(raw.ValorUnitario, unitValueDecimals)
	if err != nil {
		return nil, &fiscal.MissingFieldError{Field: "valorUnitario", Ref: ref}
	}

	return &models.Product{
		Sequence:    seq,
		Description: strings.TrimSpace(raw.Descricao),
		NCM:         ncm, // os itens partilham o NCM da adição
		Quantity:    quantity,
		Unit:        strings.TrimSpace(raw.UnidadeMedida),
		UnitPrice:   unitPrice,
	}, nil
}

// requiredMonetary parses one of the six mandatory amounts. An absent or
// malformed value is a hard error carrying the offending tag name.
func requiredMonetary(value, tag, ref string) (decimal.Decimal, error) {
	amount, err := parsePadded(value, monetaryDecimals)
	if err != nil {
		return decimal.Decimal{}, &fiscal.MissingFieldError{Field: tag, Ref: ref}
	}
	return amount, nil
}

// optionalMonetary parses allocation fields that legitimately default to
// zero when the extract omits them (freight, insurance, customs expenses).
func optionalMonetary(value string) decimal.Decimal {
	amount, err := parsePadded(value, monetaryDecimals)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// parsePadded converts SISCOMEX's zero-padded integer strings into decimals
// with the given number of fractional digits ("000000011275000" with 2
// decimals -> 112750.00). Negative or non-digit input is rejected.
func parsePadded(s string, decimals int) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty value")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return decimal.Decimal{}, fmt.Errorf("non-digit character %q in %q", r, s)
		}
	}
	n, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return n.Shift(int32(-decimals)), nil
}
