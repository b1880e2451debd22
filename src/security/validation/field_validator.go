package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/username/custoimport/src/logger"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

// Constants for lengths remain here
const (
	DefaultMaxStringLength = 255
	MaxNCMLength           = 8
	MaxCNPJLength          = 18 // 14 digits plus mask characters
	MaxDINumberLength      = 12 // 10 digits plus '/' and '-'
	MaxProgramCodeLength   = 32
	MaxDescriptionLength   = 1024
)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// --- Numeric Validators ---

// ValidateIntString parses a string to int and checks if it's within a range.
func ValidateIntString(s, fieldName string, allowNegative bool, minVal, maxVal int) (int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}

	val, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %s ('%s') is not a valid integer: %v", ErrValidationFailed, fieldName, s, err)
	}
	if !allowNegative && val < 0 {
		logger.L.Warn("Negative value not allowed for field", "field", fieldName, "value", val)
		return 0, fmt.Errorf("%w: %s cannot be negative", ErrValidationFailed, fieldName)
	}
	if val < minVal || val > maxVal {
		logger.L.Warn("Integer value out of range", "field", fieldName, "value", val, "min", minVal, "max", maxVal)
		return 0, fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrValidationFailed, fieldName, minVal, maxVal, val)
	}
	return val, nil
}

// --- Specific Format Validators ---

// Regexes for specific formats are defined here (they are not for general content scanning)
var (
	ncmRegex         = regexp.MustCompile(`^[0-9]{2,8}$`)
	ufRegex          = regexp.MustCompile(`^[A-Z]{2}$`)
	programCodeRegex = regexp.MustCompile(`^[A-Z0-9_]+$`)
	diNumberRegex    = regexp.MustCompile(`^[0-9]{10}$`)
)

// ValidateNCM checks if a string is a plausible NCM code or prefix.
// Aceita o código com ou sem pontos ("8517.62.59" ou "85176259") e permite
// prefixos parciais de 2 a 8 dígitos usados em consultas de elegibilidade.
func ValidateNCM(s string) error {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	if normalized == "" {
		return fmt.Errorf("%w: NCM cannot be empty", ErrValidationFailed)
	}
	return ValidateStringRegex(normalized, ncmRegex, "NCM", "2 to 8 digits, dots optional")
}

// ValidateUF checks if a string looks like a Brazilian state code.
// A existência da UF na tabela de alíquotas é verificada pela camada fiscal.
func ValidateUF(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	return ValidateStringRegex(trimmed, ufRegex, "UF", "2 uppercase letters")
}

// ValidateProgramCode checks format and length for incentive program codes.
func ValidateProgramCode(s string) error {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, "program code"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(trimmed, MaxProgramCodeLength, "program code"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, programCodeRegex, "program code", "uppercase letters, digits and underscores")
}

// ValidateDINumber checks the 10-digit import declaration number,
// accepting the masked form "25/1234567-8" as well.
func ValidateDINumber(s string) error {
	normalized := strings.NewReplacer("/", "", "-", "", ".", "").Replace(strings.TrimSpace(s))
	if normalized == "" {
		return fmt.Errorf("%w: DI number cannot be empty", ErrValidationFailed)
	}
	return ValidateStringRegex(normalized, diNumberRegex, "DI number", "10 digits, mask optional")
}

// ValidateCNPJ validates a CNPJ including its two check digits (módulo 11).
// Empty values pass; presence is enforced separately where the field is mandatory.
func ValidateCNPJ(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	digits := make([]int, 0, 14)
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == '.' || r == '/' || r == '-':
			// mask characters
		default:
			return fmt.Errorf("%w: CNPJ ('%s') contains invalid characters", ErrValidationFailed, s)
		}
	}
	if len(digits) != 14 {
		return fmt.Errorf("%w: CNPJ ('%s') must have 14 digits", ErrValidationFailed, s)
	}

	allEqual := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return fmt.Errorf("%w: CNPJ ('%s') is not valid", ErrValidationFailed, s)
	}

	if cnpjCheckDigit(digits[:12]) != digits[12] || cnpjCheckDigit(digits[:13]) != digits[13] {
		return fmt.Errorf("%w: CNPJ ('%s') has invalid check digits", ErrValidationFailed, s)
	}
	return nil
}

// cnpjCheckDigit computes a módulo 11 check digit over the given prefix,
// with weights cycling 2..9 from the rightmost digit.
func cnpjCheckDigit(digits []int) int {
	weight := 2
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		sum += digits[i] * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}
