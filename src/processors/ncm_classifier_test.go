package processors

import (
	"testing"

	"github.com/username/custoimport/src/fiscal"
)

func classifierTestTables() *fiscal.Tables {
	// As regras chegam do carregador ordenadas do prefixo mais longo para o
	// mais curto; a fixture replica essa ordem.
	return &fiscal.Tables{
		NCMRules: []fiscal.NCMCategoryRule{
			{Prefix: "30049069", Category: "medicamentos_especiais", Monophasic: false},
			{Prefix: "2710", Category: "combustiveis", Monophasic: true},
			{Prefix: "2711", Category: "combustiveis", Monophasic: true},
			{Prefix: "3003", Category: "farmaceuticos", Monophasic: true},
			{Prefix: "3004", Category: "farmaceuticos", Monophasic: true},
			{Prefix: "8703", Category: "veiculos", Monophasic: true},
		},
	}
}

func TestClassify(t *testing.T) {
	classifier := NewNCMClassifier(classifierTestTables())

	tests := []struct {
		name     string
		ncm      string
		wantCat  string
		wantMono bool
	}{
		{"petroleum derivative", "27101259", "combustiveis", true},
		{"formatted code", "2710.12.59", "combustiveis", true},
		{"lpg", "27111910", "combustiveis", true},
		{"pharmaceutical", "30039099", "farmaceuticos", true},
		{"passenger vehicle", "87032310", "veiculos", true},
		{"ordinary good", "85176259", "", false},
		{"short prefix only", "2710", "combustiveis", true},
		{"empty", "", "", false},
		{"separators only", "..-", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, mono := classifier.Classify(tt.ncm)
			if cat != tt.wantCat || mono != tt.wantMono {
				t.Errorf("Classify(%q) = (%q, %v), want (%q, %v)", tt.ncm, cat, mono, tt.wantCat, tt.wantMono)
			}
		})
	}
}

// The 8-digit rule must win over the 4-digit rule covering the same code.
func TestClassify_LongestPrefixWins(t *testing.T) {
	classifier := NewNCMClassifier(classifierTestTables())

	cat, mono := classifier.Classify("30049069")
	if cat != "medicamentos_especiais" || mono {
		t.Errorf("Classify(30049069) = (%q, %v), want (medicamentos_especiais, false)", cat, mono)
	}

	// Um código irmão sob o mesmo capítulo cai na regra de 4 dígitos.
	cat, mono = classifier.Classify("30049010")
	if cat != "farmaceuticos" || !mono {
		t.Errorf("Classify(30049010) = (%q, %v), want (farmaceuticos, true)", cat, mono)
	}
}

func TestNormalizeNCM(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"8517.62.59", "85176259"},
		{"2710-12-59", "27101259"},
		{" 8703 ", "8703"},
		{"", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := NormalizeNCM(tt.in); got != tt.want {
			t.Errorf("NormalizeNCM(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
