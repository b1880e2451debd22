package fiscal

import "fmt"

// Erros estruturados do motor fiscal. Cada tipo carrega os campos que o
// chamador precisa para reportar o problema com precisão; o texto humano
// é montado apenas na camada de apresentação.

// MissingFieldError indicates a required monetary or identifier field was
// absent on the input record. The engine never substitutes zero for it.
type MissingFieldError struct {
	Field string // e.g. "ii", "valor_aduaneiro"
	Ref   string // identifier of the addition/product concerned
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field %q missing on %s", e.Field, e.Ref)
}

// UnknownProgramError indicates the (state, program) pair is not registered
// in the incentive table. There is no fallback program.
type UnknownProgramError struct {
	UF      string
	Program string
}

func (e *UnknownProgramError) Error() string {
	return fmt.Sprintf("unknown incentive program %s/%s", e.UF, e.Program)
}

// UnknownStateError indicates a state code with no entry in a state-keyed
// configuration table (e.g. the nominal ICMS rate table).
type UnknownStateError struct {
	UF string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown state code %q", e.UF)
}

// InvalidYearError indicates a projection start year outside the bounds of
// the loaded reform schedule.
type InvalidYearError struct {
	Year  int
	First int
	Last  int
}

func (e *InvalidYearError) Error() string {
	return fmt.Sprintf("projection year %d outside schedule range %d-%d", e.Year, e.First, e.Last)
}

// MissingConfigurationError indicates a program or regime entry that exists
// but is structurally incomplete for the requested computation.
type MissingConfigurationError struct {
	Entry  string // configuration key, e.g. "SC/SC_TTD_409"
	Detail string // what is missing or out of bounds
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("incomplete fiscal configuration for %s: %s", e.Entry, e.Detail)
}
