// src/services/export_service.go
package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/username/custoimport/src/model"
	"github.com/username/custoimport/src/models"
	"github.com/username/custoimport/src/security/validation"
)

const (
	sheetSummary   = "Resumo"
	sheetAdditions = "Adicoes"
	sheetProducts  = "Produtos"
	sheetNFFields  = "Campos NF"
)

type exportServiceImpl struct{}

func NewExportService() ExportService {
	return &exportServiceImpl{}
}

// BuildDeclarationWorkbook renders a computed declaration as a four-sheet
// workbook. Every free-text cell is neutralized against formula injection;
// monetary cells are rounded to cents here, at the presentation boundary.
func (s *exportServiceImpl) BuildDeclarationWorkbook(result *models.DeclarationResult, nfRows []model.NFFieldRow) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	for _, name := range []string{sheetAdditions, sheetProducts, sheetNFFields} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	if err := s.fillSummarySheet(f, result, headerStyle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	if err := s.fillAdditionsSheet(f, result, headerStyle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	if err := s.fillProductsSheet(f, result, headerStyle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	if err := s.fillNFFieldsSheet(f, nfRows, headerStyle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	index, err := f.GetSheetIndex(sheetSummary)
	if err == nil {
		f.SetActiveSheet(index)
	}
	return f, nil
}

func (s *exportServiceImpl) fillSummarySheet(f *excelize.File, result *models.DeclarationResult, headerStyle int) error {
	decl := &result.Declaration

	registro := ""
	if !decl.RegistrationDate.IsZero() {
		registro = decl.RegistrationDate.Format("02/01/2006")
	}
	rows := [][]interface{}{
		{"Número DI", textCell(decl.NumeroDI)},
		{"Importador", textCell(decl.Importer.Name)},
		{"CNPJ", textCell(decl.Importer.CNPJ)},
		{"UF", textCell(decl.Importer.UF)},
		{"Data de registro", registro},
		{"Regime", string(result.Regime)},
		{"Processado em", result.ProcessedAt.Format(time.RFC3339)},
		{},
		{"Camada de custo", "Valor (BRL)"},
		{"Custo base", moneyCell(result.Totals.Base)},
		{"Custo de desembolso", moneyCell(result.Totals.Disbursement)},
		{"Custo contábil", moneyCell(result.Totals.Accounting)},
		{"Base de formação de preço", moneyCell(result.Totals.PriceFormation)},
	}
	for i, row := range rows {
		if err := writeRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetSummary, "A9", "B9", headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(sheetSummary, "A", "B", 28)
}

func (s *exportServiceImpl) fillAdditionsSheet(f *excelize.File, result *models.DeclarationResult, headerStyle int) error {
	header := []interface{}{
		"Adição", "NCM", "Valor aduaneiro", "Frete", "Seguro", "Despesas",
		"II", "IPI", "PIS", "COFINS", "ICMS",
		"Custo base", "Custo desembolso", "Custo contábil", "Base formação preço",
	}
	if err := writeRow(f, sheetAdditions, 1, header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetAdditions, "A1", "O1", headerStyle); err != nil {
		return err
	}

	for i := range result.Declaration.Additions {
		a := &result.Declaration.Additions[i]
		layers := a.CostLayers
		if layers == nil {
			layers = &models.CostLayers{}
		}
		customs := 0.0
		if a.CustomsValue != nil {
			customs = moneyCell(*a.CustomsValue)
		}
		row := []interface{}{
			textCell(a.Number), textCell(a.NCM), customs,
			moneyCell(a.Freight), moneyCell(a.Insurance), moneyCell(a.Expenses),
			taxCell(a.Taxes, models.TaxII), taxCell(a.Taxes, models.TaxIPI),
			taxCell(a.Taxes, models.TaxPIS), taxCell(a.Taxes, models.TaxCOFINS),
			taxCell(a.Taxes, models.TaxICMS),
			moneyCell(layers.Base), moneyCell(layers.Disbursement),
			moneyCell(layers.Accounting), moneyCell(layers.PriceFormation),
		}
		if err := writeRow(f, sheetAdditions, i+2, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetAdditions, "A", "O", 16)
}

func (s *exportServiceImpl) fillProductsSheet(f *excelize.File, result *models.DeclarationResult, headerStyle int) error {
	header := []interface{}{
		"Adição", "Seq", "Descrição", "NCM", "Categoria", "Monofásico",
		"Quantidade", "Unidade", "Preço unitário",
		"Custo base", "Custo desembolso", "Custo contábil", "Base formação preço",
	}
	if err := writeRow(f, sheetProducts, 1, header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetProducts, "A1", "M1", headerStyle); err != nil {
		return err
	}

	rowIdx := 2
	for i := range result.Declaration.Additions {
		a := &result.Declaration.Additions[i]
		for j := range a.Products {
			p := &a.Products[j]
			layers := p.CostLayers
			if layers == nil {
				layers = &models.CostLayers{}
			}
			mono := "não"
			if p.IsMonophasic {
				mono = "sim"
			}
			row := []interface{}{
				textCell(a.Number), p.Sequence, textCell(p.Description),
				textCell(p.NCM), textCell(p.Category), mono,
				p.Quantity.InexactFloat64(), textCell(p.Unit), p.UnitPrice.InexactFloat64(),
				moneyCell(layers.Base), moneyCell(layers.Disbursement),
				moneyCell(layers.Accounting), moneyCell(layers.PriceFormation),
			}
			if err := writeRow(f, sheetProducts, rowIdx, row); err != nil {
				return err
			}
			rowIdx++
		}
	}
	if err := f.SetColWidth(sheetProducts, "C", "C", 44); err != nil {
		return err
	}
	return f.SetColWidth(sheetProducts, "D", "M", 16)
}

func (s *exportServiceImpl) fillNFFieldsSheet(f *excelize.File, nfRows []model.NFFieldRow, headerStyle int) error {
	header := []interface{}{
		"Adição", "Programa", "CST", "vBC", "vICMSOp", "vICMSDif", "vICMS",
		"pDif", "cBenef", "Calculado em",
	}
	if err := writeRow(f, sheetNFFields, 1, header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetNFFields, "A1", "J1", headerStyle); err != nil {
		return err
	}

	for i, r := range nfRows {
		row := []interface{}{
			textCell(r.AdditionNumber), textCell(r.Program), textCell(r.CST),
			storedDecimalCell(r.VBC), storedDecimalCell(r.VICMSOp),
			storedDecimalCell(r.VICMSDif), storedDecimalCell(r.VICMS),
			storedDecimalCell(r.PDif), textCell(r.CBenef),
			r.ComputedAt.Format(time.RFC3339),
		}
		if err := writeRow(f, sheetNFFields, i+2, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetNFFields, "A", "J", 16)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func textCell(s string) string {
	return validation.SanitizeForFormulaInjection(s)
}

func moneyCell(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func taxCell(taxes models.TaxAmounts, kind models.TaxKind) interface{} {
	if amount, ok := taxes.Get(kind); ok {
		return moneyCell(amount)
	}
	return ""
}

// storedDecimalCell turns a TEXT-stored decimal into a numeric cell, falling
// back to the raw text if the stored value does not parse.
func storedDecimalCell(s string) interface{} {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return textCell(s)
	}
	return d.InexactFloat64()
}
