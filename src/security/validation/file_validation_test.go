package validation

import (
	"bytes"
	"testing"
)

func TestValidateClientContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantErr     bool
	}{
		{"text xml", "text/xml", false},
		{"application xml", "application/xml", false},
		{"with charset parameter", "text/xml; charset=ISO-8859-1", false},
		{"plain text", "text/plain", false},
		{"uppercase normalized", "TEXT/XML", false},
		{"xlsx rejected", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", true},
		{"zip rejected", "application/zip", true},
		{"pdf rejected", "application/pdf", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClientContentType(tt.contentType)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClientContentType(%q) error = %v, wantErr %v", tt.contentType, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	latin1XML := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><ListaDeclaracoes><declaracaoImportacao><importadorNome>IMPORTA`),
		0xC7, 0xC3) // "ÇÃ" em ISO-8859-1: bytes altos legítimos
	latin1XML = append(latin1XML, []byte(`O LTDA</importadorNome></declaracaoImportacao></ListaDeclaracoes>`)...)

	tests := []struct {
		name    string
		content []byte
		wantErr bool
	}{
		{"utf8 xml", []byte(`<?xml version="1.0"?><ListaDeclaracoes></ListaDeclaracoes>`), false},
		{"latin1 xml with high bytes", latin1XML, false},
		{"xml with leading whitespace", []byte("\n\t<?xml version=\"1.0\"?><a></a>"), false},
		{"null byte", []byte("<?xml version=\"1.0\"?>\x00<a></a>"), true},
		{"control characters", []byte{0x01, 0x02, 0x03, '<', 'a', '>'}, true},
		{"zip signature", []byte{'P', 'K', 0x03, 0x04, 0x00, 0x00}, true},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := bytes.NewReader(tt.content)
			_, err := ValidateFileContentByMagicBytes(reader)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			// O ponteiro de leitura tem de voltar ao início para o parser.
			if !tt.wantErr {
				pos, _ := reader.Seek(0, 1)
				if pos != 0 {
					t.Errorf("read pointer at %d after validation, want 0", pos)
				}
			}
		})
	}
}

func TestIsBinaryContent(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want bool
	}{
		{"ascii text", []byte("plain xml content"), false},
		{"latin1 high bytes", []byte{'t', 'e', 'x', 't', 0xE7, 0xE3}, false},
		{"tabs and newlines", []byte("a\tb\nc\r\n"), false},
		{"null byte", []byte{'a', 0x00, 'b'}, true},
		{"bell character", []byte{'a', 0x07, 'b'}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBinaryContent(tt.buf); got != tt.want {
				t.Errorf("isBinaryContent(%v) = %v, want %v", tt.buf, got, tt.want)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain description", "PARAFUSOS DE ACO", "PARAFUSOS DE ACO"},
		{"script stripped", `<script>alert(1)</script>PARAFUSOS`, "PARAFUSOS"},
		{"tags stripped", "<b>negrito</b>", "negrito"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.in); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeForFormulaInjection(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"formula", "=SUM(A1:A9)", "'=SUM(A1:A9)"},
		{"plus prefix", "+5511999", "'+5511999"},
		{"minus prefix", "-margin", "'-margin"},
		{"at prefix", "@cell", "'@cell"},
		{"plain text untouched", "PARAFUSOS", "PARAFUSOS"},
		{"empty untouched", "", ""},
		{"leading space still caught", "  =1+1", "'  =1+1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForFormulaInjection(tt.in); got != tt.want {
				t.Errorf("SanitizeForFormulaInjection(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripUnprintable(t *testing.T) {
	in := "desc\x00ri\x01cao\tcom\nquebras"
	want := "descricao\tcom\nquebras"
	if got := StripUnprintable(in); got != want {
		t.Errorf("StripUnprintable(%q) = %q, want %q", in, got, want)
	}
}

func TestCheckXSSPatterns(t *testing.T) {
	if err := CheckXSSPatterns("extrato_di_2025.xml", "filename", "test"); err != nil {
		t.Errorf("benign filename rejected: %v", err)
	}
	if err := CheckXSSPatterns(`<script>alert(1)</script>.xml`, "filename", "test"); err == nil {
		t.Error("script tag accepted, want error")
	}
	if err := CheckXSSPatterns("javascript:void(0)", "filename", "test"); err == nil {
		t.Error("javascript scheme accepted, want error")
	}
}

func TestCheckFormulaInjection(t *testing.T) {
	if err := CheckFormulaInjection("extrato.xml", "filename", "test"); err != nil {
		t.Errorf("benign filename rejected: %v", err)
	}
	if err := CheckFormulaInjection("=cmd|' /C calc'!A0", "filename", "test"); err == nil {
		t.Error("formula prefix accepted, want error")
	}
	if err := CheckFormulaInjection("@SUM.xml", "filename", "test"); err == nil {
		t.Error("at-sign prefix accepted, want error")
	}
}
