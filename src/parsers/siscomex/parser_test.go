package siscomex

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/models"
)

const standardAddition = `
		<adicao>
			<numeroAdicao>001</numeroAdicao>
			<dadosMercadoriaCodigoNcm>85176259</dadosMercadoriaCodigoNcm>
			<valorAduaneiroReais>000000010000000</valorAduaneiroReais>
			<freteValorReais>000000000050000</freteValorReais>
			<seguroValorReais>000000000001000</seguroValorReais>
			<despesasAduaneirasReais>000000000012345</despesasAduaneirasReais>
			<iiAliquotaValorRecolher>000000000200000</iiAliquotaValorRecolher>
			<ipiAliquotaValorRecolher>000000000150000</ipiAliquotaValorRecolher>
			<pisPasepAliquotaValorRecolher>000000000165000</pisPasepAliquotaValorRecolher>
			<cofinsAliquotaValorRecolher>000000000760000</cofinsAliquotaValorRecolher>
			<icmsValorRecolher>000000000000000</icmsValorRecolher>
			<mercadoria>
				<numeroSequencialItem>01</numeroSequencialItem>
				<descricaoMercadoria>PARAFUSOS DE ACO INOXIDAVEL</descricaoMercadoria>
				<quantidade>00000000200000</quantidade>
				<unidadeMedida>UNIDADE</unidadeMedida>
				<valorUnitario>000000226500000</valorUnitario>
			</mercadoria>
		</adicao>`

func wrapDeclaration(additions string) string {
	return `<?xml version="1.0" encoding="ISO-8859-1"?>
<ListaDeclaracoes>
	<declaracaoImportacao>
		<numeroDI>2503040245</numeroDI>
		<dataRegistro>20250317</dataRegistro>
		<importadorNome>IMPORTAÇÃO ALFA LTDA</importadorNome>
		<importadorNumero>11222333000181</importadorNumero>
		<importadorEnderecoUf>SC</importadorEnderecoUf>` + additions + `
	</declaracaoImportacao>
</ListaDeclaracoes>`
}

// toLatin1 re-encodes the UTF-8 source the way SISCOMEX actually serves the
// extract, so the charset reader is exercised for real.
func toLatin1(t *testing.T, s string) string {
	t.Helper()
	encoded, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		t.Fatalf("failed to encode fixture to ISO-8859-1: %v", err)
	}
	return encoded
}

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParse_DeclarationFromLatin1Extract(t *testing.T) {
	parser := NewParser()

	declarations, err := parser.Parse(strings.NewReader(toLatin1(t, wrapDeclaration(standardAddition))))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(declarations) != 1 {
		t.Fatalf("got %d declarations, want 1", len(declarations))
	}

	decl := declarations[0]
	if decl.NumeroDI != "2503040245" {
		t.Errorf("numeroDI = %q, want 2503040245", decl.NumeroDI)
	}
	if decl.Importer.Name != "IMPORTAÇÃO ALFA LTDA" {
		t.Errorf("importer name = %q, accented characters lost in decoding", decl.Importer.Name)
	}
	if decl.Importer.CNPJ != "11222333000181" || decl.Importer.UF != "SC" {
		t.Errorf("importer = %+v", decl.Importer)
	}
	wantDate := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	if !decl.RegistrationDate.Equal(wantDate) {
		t.Errorf("registration date = %s, want %s", decl.RegistrationDate, wantDate)
	}

	if len(decl.Additions) != 1 {
		t.Fatalf("got %d additions, want 1", len(decl.Additions))
	}
	add := decl.Additions[0]
	if add.Number != "001" || add.NCM != "85176259" {
		t.Errorf("addition header = %+v", add)
	}
	if add.CustomsValue == nil || !add.CustomsValue.Equal(mustDec("100000")) {
		t.Errorf("customs value = %v, want 100000", add.CustomsValue)
	}
	if !add.Freight.Equal(mustDec("500")) {
		t.Errorf("freight = %s, want 500", add.Freight)
	}
	if !add.Insurance.Equal(mustDec("10")) {
		t.Errorf("insurance = %s, want 10", add.Insurance)
	}
	if !add.Expenses.Equal(mustDec("123.45")) {
		t.Errorf("expenses = %s, want 123.45", add.Expenses)
	}

	wantTaxes := map[models.TaxKind]string{
		models.TaxII:     "2000",
		models.TaxIPI:    "1500",
		models.TaxPIS:    "1650",
		models.TaxCOFINS: "7600",
		models.TaxICMS:   "0",
	}
	for kind, want := range wantTaxes {
		got, ok := add.Taxes.Get(kind)
		if !ok {
			t.Errorf("tax %s absent", kind)
			continue
		}
		if !got.Equal(mustDec(want)) {
			t.Errorf("tax %s = %s, want %s", kind, got, want)
		}
	}

	if len(add.Products) != 1 {
		t.Fatalf("got %d products, want 1", len(add.Products))
	}
	product := add.Products[0]
	if product.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", product.Sequence)
	}
	if product.NCM != "85176259" {
		t.Errorf("product NCM = %q, want the addition's NCM", product.NCM)
	}
	if !product.Quantity.Equal(mustDec("2")) {
		t.Errorf("quantity = %s, want 2", product.Quantity)
	}
	if !product.UnitPrice.Equal(mustDec("22.65")) {
		t.Errorf("unit price = %s, want 22.65", product.UnitPrice)
	}
	if product.Unit != "UNIDADE" {
		t.Errorf("unit = %q, want UNIDADE", product.Unit)
	}
}

func TestParse_MultipleDeclarationsInOneExtract(t *testing.T) {
	parser := NewParser()
	doc := `<?xml version="1.0" encoding="ISO-8859-1"?>
<ListaDeclaracoes>
	<declaracaoImportacao>
		<numeroDI>2503040245</numeroDI>
		<importadorNome>ALFA</importadorNome>
		<importadorNumero>11222333000181</importadorNumero>
		<importadorEnderecoUf>SC</importadorEnderecoUf>` + standardAddition + `
	</declaracaoImportacao>
	<declaracaoImportacao>
		<numeroDI>2503040253</numeroDI>
		<importadorNome>BETA</importadorNome>
		<importadorNumero>11222333000181</importadorNumero>
		<importadorEnderecoUf>ES</importadorEnderecoUf>` + standardAddition + `
	</declaracaoImportacao>
</ListaDeclaracoes>`

	declarations, err := parser.Parse(strings.NewReader(toLatin1(t, doc)))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(declarations) != 2 {
		t.Fatalf("got %d declarations, want 2", len(declarations))
	}
	if declarations[0].NumeroDI != "2503040245" || declarations[1].NumeroDI != "2503040253" {
		t.Errorf("numeroDI order = %q, %q", declarations[0].NumeroDI, declarations[1].NumeroDI)
	}
	if declarations[1].Importer.UF != "ES" {
		t.Errorf("second importer UF = %q, want ES", declarations[1].Importer.UF)
	}
}

func TestParse_MissingMonetaryTagFails(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name      string
		dropTag   string
		wantField string
	}{
		{"ii absent", "iiAliquotaValorRecolher", "iiAliquotaValorRecolher"},
		{"icms absent", "icmsValorRecolher", "icmsValorRecolher"},
		{"customs value absent", "valorAduaneiroReais", "valorAduaneiroReais"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutilated := removeTag(standardAddition, tt.dropTag)
			_, err := parser.Parse(strings.NewReader(toLatin1(t, wrapDeclaration(mutilated))))

			var missing *fiscal.MissingFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("error = %v, want MissingFieldError", err)
			}
			if missing.Field != tt.wantField {
				t.Errorf("missing field = %q, want %q", missing.Field, tt.wantField)
			}
			if missing.Ref != "adicao 001" {
				t.Errorf("missing ref = %q, want adicao 001", missing.Ref)
			}
		})
	}
}

func removeTag(xmlFragment, tag string) string {
	open := "<" + tag + ">"
	closing := "</" + tag + ">"
	start := strings.Index(xmlFragment, open)
	end := strings.Index(xmlFragment, closing)
	if start < 0 || end < 0 {
		return xmlFragment
	}
	return xmlFragment[:start] + xmlFragment[end+len(closing):]
}

func TestParse_OptionalAllocationsDefaultToZero(t *testing.T) {
	parser := NewParser()
	stripped := removeTag(removeTag(removeTag(standardAddition,
		"freteValorReais"), "seguroValorReais"), "despesasAduaneirasReais")

	declarations, err := parser.Parse(strings.NewReader(toLatin1(t, wrapDeclaration(stripped))))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	add := declarations[0].Additions[0]
	if !add.Freight.IsZero() || !add.Insurance.IsZero() || !add.Expenses.IsZero() {
		t.Errorf("allocations = %s/%s/%s, want zeros", add.Freight, add.Insurance, add.Expenses)
	}
}

func TestParse_HeaderValidation(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name      string
		doc       string
		wantField string
	}{
		{
			"numeroDI absent",
			`<?xml version="1.0"?><ListaDeclaracoes><declaracaoImportacao>
				<importadorEnderecoUf>SC</importadorEnderecoUf>` + standardAddition + `
			</declaracaoImportacao></ListaDeclaracoes>`,
			"numeroDI",
		},
		{
			"importer state absent",
			`<?xml version="1.0"?><ListaDeclaracoes><declaracaoImportacao>
				<numeroDI>2503040245</numeroDI>` + standardAddition + `
			</declaracaoImportacao></ListaDeclaracoes>`,
			"importadorEnderecoUf",
		},
		{
			"no additions",
			`<?xml version="1.0"?><ListaDeclaracoes><declaracaoImportacao>
				<numeroDI>2503040245</numeroDI>
				<importadorEnderecoUf>SC</importadorEnderecoUf>
			</declaracaoImportacao></ListaDeclaracoes>`,
			"adicao",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(strings.NewReader(tt.doc))
			var missing *fiscal.MissingFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("error = %v, want MissingFieldError", err)
			}
			if missing.Field != tt.wantField {
				t.Errorf("missing field = %q, want %q", missing.Field, tt.wantField)
			}
		})
	}
}

func TestParse_InvalidRegistrationDateTolerated(t *testing.T) {
	parser := NewParser()
	doc := strings.Replace(wrapDeclaration(standardAddition),
		"<dataRegistro>20250317</dataRegistro>", "<dataRegistro>17/03/2025</dataRegistro>", 1)

	declarations, err := parser.Parse(strings.NewReader(toLatin1(t, doc)))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !declarations[0].RegistrationDate.IsZero() {
		t.Errorf("registration date = %s, want zero for unparseable input", declarations[0].RegistrationDate)
	}
}

func TestParse_EmptyExtractFails(t *testing.T) {
	parser := NewParser()
	doc := `<?xml version="1.0"?><ListaDeclaracoes></ListaDeclaracoes>`
	if _, err := parser.Parse(strings.NewReader(doc)); err == nil {
		t.Fatal("extract without declarations parsed, want error")
	}
}

func TestParse_UnsupportedCharsetFails(t *testing.T) {
	parser := NewParser()
	doc := `<?xml version="1.0" encoding="shift-jis"?><ListaDeclaracoes></ListaDeclaracoes>`
	if _, err := parser.Parse(strings.NewReader(doc)); err == nil {
		t.Fatal("unsupported charset accepted, want error")
	}
}

func TestParsePadded(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals int
		want     string
		wantErr  bool
	}{
		{"monetary centavos", "000000011275000", 2, "112750", false},
		{"small monetary", "123", 2, "1.23", false},
		{"zero", "000000000000000", 2, "0", false},
		{"quantity five decimals", "00000000200000", 5, "2", false},
		{"unit value seven decimals", "000000226500000", 7, "22.65", false},
		{"empty", "", 2, "", true},
		{"letters", "12a3", 2, "", true},
		{"sign rejected", "-123", 2, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePadded(tt.in, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parsePadded(%q) = %s, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePadded(%q) failed: %v", tt.in, err)
			}
			if !got.Equal(mustDec(tt.want)) {
				t.Errorf("parsePadded(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
