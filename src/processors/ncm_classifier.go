// src/processors/ncm_classifier.go
package processors

import (
	"strings"

	"github.com/username/custoimport/src/fiscal"
)

// ncmClassifierImpl implements the NCMClassifier interface over the loaded
// NCM category table.
type ncmClassifierImpl struct {
	rules []fiscal.NCMCategoryRule // longest-prefix-first, fixed at load
}

// NewNCMClassifier creates a new instance of NCMClassifier bound to a
// fiscal configuration snapshot.
func NewNCMClassifier(tables *fiscal.Tables) NCMClassifier {
	return &ncmClassifierImpl{rules: tables.NCMRules}
}

// Classify matches the NCM's leading digits against the ordered category
// table. Rules are checked longest-prefix-first, so an 8-digit rule always
// beats a 4-digit rule covering the same code. No match is not an error:
// most NCMs are ordinary-regime goods and come back with an empty category.
func (c *ncmClassifierImpl) Classify(ncm string) (string, bool) {
	code := NormalizeNCM(ncm)
	if code == "" {
		return "", false
	}
	for _, rule := range c.rules {
		if strings.HasPrefix(code, rule.Prefix) {
			return rule.Category, rule.Monophasic
		}
	}
	return "", false
}

// NormalizeNCM strips the formatting separators commonly present in tariff
// codes ("8517.62.59" -> "85176259").
func NormalizeNCM(ncm string) string {
	var b strings.Builder
	b.Grow(len(ncm))
	for _, r := range ncm {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
