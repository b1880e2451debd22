// src/model/declaration_store.go
package model

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/models"
)

// DeclarationSummary is the listing row returned for stored declarations.
type DeclarationSummary struct {
	NumeroDI      string    `json:"numero_di"`
	ImporterName  string    `json:"importador_nome"`
	ImporterUF    string    `json:"importador_uf"`
	Regime        string    `json:"regime"`
	AdditionCount int       `json:"total_adicoes"`
	ProductCount  int       `json:"total_produtos"`
	ProcessedAt   time.Time `json:"processado_em"`
}

// NFFieldRow is one persisted deferral-field computation, kept as an audit
// trail of what was stamped on outgoing documents.
type NFFieldRow struct {
	AdditionNumber string    `json:"numero_adicao"`
	Program        string    `json:"programa"`
	CST            string    `json:"cst"`
	VBC            string    `json:"vBC"`
	VICMSOp        string    `json:"vICMSOp"`
	VICMSDif       string    `json:"vICMSDif"`
	VICMS          string    `json:"vICMS"`
	PDif           string    `json:"pDif"`
	CBenef         string    `json:"cBenef"`
	ComputedAt     time.Time `json:"calculado_em"`
}

// InsertDeclarationResult persists a computed declaration, replacing any
// previous computation for the same numero_di. Monetary values are stored
// as TEXT so no precision is lost to float conversion.
func InsertDeclarationResult(db *sql.DB, result *models.DeclarationResult, sourceFilename string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	decl := &result.Declaration

	// Recalcular a mesma DI substitui o resultado anterior por inteiro.
	if _, err := tx.Exec(`DELETE FROM declarations WHERE numero_di = ?`, decl.NumeroDI); err != nil {
		return 0, fmt.Errorf("failed to clear previous result for %s: %w", decl.NumeroDI, err)
	}

	res, err := tx.Exec(`
		INSERT INTO declarations (numero_di, importador_nome, importador_cnpj, importador_uf,
			data_registro, regime, custo_base, custo_desembolso, custo_contabil,
			base_formacao_preco, source_filename, processado_em)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		decl.NumeroDI, decl.Importer.Name, decl.Importer.CNPJ, decl.Importer.UF,
		nullableTime(decl.RegistrationDate), string(result.Regime),
		result.Totals.Base.String(), result.Totals.Disbursement.String(),
		result.Totals.Accounting.String(), result.Totals.PriceFormation.String(),
		sourceFilename, result.ProcessedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert declaration %s: %w", decl.NumeroDI, err)
	}
	declID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read declaration id: %w", err)
	}

	for i := range decl.Additions {
		if err := insertAddition(tx, declID, &decl.Additions[i]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit declaration %s: %w", decl.NumeroDI, err)
	}
	return declID, nil
}

func insertAddition(tx *sql.Tx, declID int64, addition *models.Addition) error {
	layers := addition.CostLayers
	if layers == nil {
		layers = &models.CostLayers{}
	}
	customs := ""
	if addition.CustomsValue != nil {
		customs = addition.CustomsValue.String()
	}
	res, err := tx.Exec(`
		INSERT INTO additions (declaration_id, numero_adicao, ncm, valor_aduaneiro, frete,
			seguro, despesas, ii, ipi, pis, cofins, icms,
			custo_base, custo_desembolso, custo_contabil, base_formacao_preco)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		declID, addition.Number, addition.NCM, customs,
		addition.Freight.String(), addition.Insurance.String(), addition.Expenses.String(),
		taxText(addition.Taxes, models.TaxII), taxText(addition.Taxes, models.TaxIPI),
		taxText(addition.Taxes, models.TaxPIS), taxText(addition.Taxes, models.TaxCOFINS),
		taxText(addition.Taxes, models.TaxICMS),
		layers.Base.String(), layers.Disbursement.String(),
		layers.Accounting.String(), layers.PriceFormation.String())
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", addition.Ref(), err)
	}
	addID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read addition id: %w", err)
	}

	for j := range addition.Products {
		product := &addition.Products[j]
		productLayers := product.CostLayers
		if productLayers == nil {
			productLayers = &models.CostLayers{}
		}
		_, err := tx.Exec(`
			INSERT INTO products (addition_id, sequencial, descricao, ncm, quantidade, unidade,
				preco_unitario, categoria, monofasico,
				custo_base, custo_desembolso, custo_contabil, base_formacao_preco)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			addID, product.Sequence, product.Description, product.NCM,
			product.Quantity.String(), product.Unit, product.UnitPrice.String(),
			product.Category, boolToInt(product.IsMonophasic),
			productLayers.Base.String(), productLayers.Disbursement.String(),
			productLayers.Accounting.String(), productLayers.PriceFormation.String())
		if err != nil {
			return fmt.Errorf("failed to insert product %d of %s: %w", product.Sequence, addition.Ref(), err)
		}
	}
	return nil
}

// GetDeclarationResult reassembles a stored computation. Returns
// sql.ErrNoRows when the declaration was never stored.
func GetDeclarationResult(db *sql.DB, numeroDI string) (*models.DeclarationResult, error) {
	var (
		declID       int64
		result       models.DeclarationResult
		regime       string
		dataRegistro sql.NullTime
		base, disb   string
		acct, price  string
	)
	err := db.QueryRow(`
		SELECT id, numero_di, importador_nome, importador_cnpj, importador_uf, data_registro,
			regime, custo_base, custo_desembolso, custo_contabil, base_formacao_preco, processado_em
		FROM declarations WHERE numero_di = ?`, numeroDI).
		Scan(&declID, &result.Declaration.NumeroDI, &result.Declaration.Importer.Name,
			&result.Declaration.Importer.CNPJ, &result.Declaration.Importer.UF, &dataRegistro,
			&regime, &base, &disb, &acct, &price, &result.ProcessedAt)
	if err != nil {
		return nil, err
	}
	if dataRegistro.Valid {
		result.Declaration.RegistrationDate = dataRegistro.Time
	}
	result.Regime = fiscal.TaxRegime(regime)
	if result.Totals, err = layersFromText(base, disb, acct, price); err != nil {
		return nil, fmt.Errorf("corrupt totals for %s: %w", numeroDI, err)
	}

	if result.Declaration.Additions, err = loadAdditions(db, declID); err != nil {
		return nil, err
	}
	return &result, nil
}

func loadAdditions(db *sql.DB, declID int64) ([]models.Addition, error) {
	rows, err := db.Query(`
		SELECT id, numero_adicao, ncm, valor_aduaneiro, frete, seguro, despesas,
			ii, ipi, pis, cofins, icms,
			custo_base, custo_desembolso, custo_contabil, base_formacao_preco
		FROM additions WHERE declaration_id = ? ORDER BY id ASC`, declID)
	if err != nil {
		return nil, fmt.Errorf("failed to query additions: %w", err)
	}
	defer rows.Close()

	var additions []models.Addition
	var additionIDs []int64
	for rows.Next() {
		var (
			addID                          int64
			a                              models.Addition
			customs, frete, seguro, desp   string
			ii, ipi, pis, cofins, icms     string
			base, disb, acct, price        string
		)
		if err := rows.Scan(&addID, &a.Number, &a.NCM, &customs, &frete, &seguro, &desp,
			&ii, &ipi, &pis, &cofins, &icms, &base, &disb, &acct, &price); err != nil {
			return nil, fmt.Errorf("failed to scan addition row: %w", err)
		}
		customsDec, err := decimal.NewFromString(customs)
		if err != nil {
			return nil, fmt.Errorf("corrupt valor_aduaneiro on addition %s: %w", a.Number, err)
		}
		a.CustomsValue = &customsDec
		if a.Freight, err = decimal.NewFromString(frete); err != nil {
			return nil, fmt.Errorf("corrupt frete on addition %s: %w", a.Number, err)
		}
		if a.Insurance, err = decimal.NewFromString(seguro); err != nil {
			return nil, fmt.Errorf("corrupt seguro on addition %s: %w", a.Number, err)
		}
		if a.Expenses, err = decimal.NewFromString(desp); err != nil {
			return nil, fmt.Errorf("corrupt despesas on addition %s: %w", a.Number, err)
		}
		a.Taxes = models.TaxAmounts{}
		for kind, text := range map[models.TaxKind]string{
			models.TaxII: ii, models.TaxIPI: ipi, models.TaxPIS: pis,
			models.TaxCOFINS: cofins, models.TaxICMS: icms,
		} {
			amount, err := decimal.NewFromString(text)
			if err != nil {
				return nil, fmt.Errorf("corrupt %s on addition %s: %w", kind, a.Number, err)
			}
			a.Taxes[kind] = amount
		}
		layers, err := layersFromText(base, disb, acct, price)
		if err != nil {
			return nil, fmt.Errorf("corrupt cost layers on addition %s: %w", a.Number, err)
		}
		a.CostLayers = &layers

		additions = append(additions, a)
		additionIDs = append(additionIDs, addID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, addID := range additionIDs {
		products, err := loadProducts(db, addID, additions[i].Number)
		if err != nil {
			return nil, err
		}
		additions[i].Products = products
	}
	return additions, nil
}

func loadProducts(db *sql.DB, additionID int64, additionNumber string) ([]models.Product, error) {
	rows, err := db.Query(`
		SELECT sequencial, descricao, ncm, quantidade, unidade, preco_unitario, categoria,
			monofasico, custo_base, custo_desembolso, custo_contabil, base_formacao_preco
		FROM products WHERE addition_id = ? ORDER BY sequencial ASC`, additionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var (
			p                       models.Product
			qty, unitPrice          string
			mono                    int
			base, disb, acct, price string
		)
		if err := rows.Scan(&p.Sequence, &p.Description, &p.NCM, &qty, &p.Unit, &unitPrice,
			&p.Category, &mono, &base, &disb, &acct, &price); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		if p.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("corrupt quantidade on addition %s product %d: %w", additionNumber, p.Sequence, err)
		}
		if p.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("corrupt preco_unitario on addition %s product %d: %w", additionNumber, p.Sequence, err)
		}
		p.IsMonophasic = mono != 0
		layers, err := layersFromText(base, disb, acct, price)
		if err != nil {
			return nil, fmt.Errorf("corrupt cost layers on addition %s product %d: %w", additionNumber, p.Sequence, err)
		}
		p.CostLayers = &layers
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListDeclarationSummaries returns the stored declarations, newest first.
func ListDeclarationSummaries(db *sql.DB) ([]DeclarationSummary, error) {
	rows, err := db.Query(`
		SELECT d.numero_di, d.importador_nome, d.importador_uf, d.regime, d.processado_em,
			(SELECT COUNT(*) FROM additions a WHERE a.declaration_id = d.id),
			(SELECT COUNT(*) FROM products p JOIN additions a ON p.addition_id = a.id WHERE a.declaration_id = d.id)
		FROM declarations d ORDER BY d.processado_em DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query declarations: %w", err)
	}
	defer rows.Close()

	summaries := make([]DeclarationSummary, 0)
	for rows.Next() {
		var s DeclarationSummary
		if err := rows.Scan(&s.NumeroDI, &s.ImporterName, &s.ImporterUF, &s.Regime,
			&s.ProcessedAt, &s.AdditionCount, &s.ProductCount); err != nil {
			return nil, fmt.Errorf("failed to scan declaration summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteDeclarationByNumero removes a stored declaration and, through the
// foreign keys, its additions, products and NF field rows. Returns the
// number of declarations removed.
func DeleteDeclarationByNumero(db *sql.DB, numeroDI string) (int64, error) {
	res, err := db.Exec(`DELETE FROM declarations WHERE numero_di = ?`, numeroDI)
	if err != nil {
		return 0, fmt.Errorf("failed to delete declaration %s: %w", numeroDI, err)
	}
	return res.RowsAffected()
}

// SaveNFFields records a deferral-field computation for audit, replacing a
// previous run of the same program over the same declaration.
func SaveNFFields(db *sql.DB, numeroDI string, fields []models.NFFields) error {
	if len(fields) == 0 {
		return nil
	}
	var declID int64
	if err := db.QueryRow(`SELECT id FROM declarations WHERE numero_di = ?`, numeroDI).Scan(&declID); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	program := fields[0].Program
	if _, err := tx.Exec(`DELETE FROM nf_field_results WHERE declaration_id = ? AND programa = ?`, declID, program); err != nil {
		return fmt.Errorf("failed to clear previous NF fields: %w", err)
	}
	now := time.Now()
	for _, f := range fields {
		_, err := tx.Exec(`
			INSERT INTO nf_field_results (declaration_id, numero_adicao, programa, cst,
				v_bc, v_icms_op, v_icms_dif, v_icms, p_dif, c_benef, calculado_em)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			declID, f.AdditionNumber, f.Program, f.CST,
			f.VBC.String(), f.VICMSOp.String(), f.VICMSDif.String(), f.VICMS.String(),
			f.PDif.String(), f.CBenef, now)
		if err != nil {
			return fmt.Errorf("failed to insert NF fields for adicao %s: %w", f.AdditionNumber, err)
		}
	}
	return tx.Commit()
}

// ListNFFields returns every persisted deferral-field row of a declaration,
// across all programs it was computed for.
func ListNFFields(db *sql.DB, numeroDI string) ([]NFFieldRow, error) {
	rows, err := db.Query(`
		SELECT n.numero_adicao, n.programa, n.cst, n.v_bc, n.v_icms_op, n.v_icms_dif,
			n.v_icms, n.p_dif, n.c_benef, n.calculado_em
		FROM nf_field_results n
		JOIN declarations d ON n.declaration_id = d.id
		WHERE d.numero_di = ?
		ORDER BY n.programa, n.numero_adicao`, numeroDI)
	if err != nil {
		return nil, fmt.Errorf("failed to query NF fields: %w", err)
	}
	defer rows.Close()

	results := make([]NFFieldRow, 0)
	for rows.Next() {
		var r NFFieldRow
		if err := rows.Scan(&r.AdditionNumber, &r.Program, &r.CST, &r.VBC, &r.VICMSOp,
			&r.VICMSDif, &r.VICMS, &r.PDif, &r.CBenef, &r.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan NF field row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RecordUpload appends one row to the upload audit trail.
func RecordUpload(db *sql.DB, filename string, sizeBytes int64, declarationCount int) error {
	_, err := db.Exec(`
		INSERT INTO uploads_history (filename, file_size_bytes, declaration_count, uploaded_at)
		VALUES (?, ?, ?, ?)`, filename, sizeBytes, declarationCount, time.Now())
	return err
}

func layersFromText(base, disbursement, accounting, priceFormation string) (models.CostLayers, error) {
	var layers models.CostLayers
	var err error
	if layers.Base, err = decimal.NewFromString(base); err != nil {
		return models.CostLayers{}, err
	}
	if layers.Disbursement, err = decimal.NewFromString(disbursement); err != nil {
		return models.CostLayers{}, err
	}
	if layers.Accounting, err = decimal.NewFromString(accounting); err != nil {
		return models.CostLayers{}, err
	}
	if layers.PriceFormation, err = decimal.NewFromString(priceFormation); err != nil {
		return models.CostLayers{}, err
	}
	return layers, nil
}

func taxText(taxes models.TaxAmounts, kind models.TaxKind) string {
	if amount, ok := taxes.Get(kind); ok {
		return amount.String()
	}
	return "0"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
