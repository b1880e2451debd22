package fiscal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Nomes dos ficheiros de dados fiscais versionados. Todos vivem no diretório
// apontado por FISCAL_DATA_DIR e são carregados uma única vez no arranque.
const (
	regimesFile    = "regimes.yaml"
	ncmFile        = "ncm_categorias.yaml"
	incentivesFile = "incentivos.yaml"
	icmsRatesFile  = "aliquotas_icms.yaml"
	reformFile     = "reforma.yaml"
)

var hundred = decimal.NewFromInt(100)

// As 27 unidades federativas. Tabelas estaduais só aceitam estas chaves.
var brazilianUFs = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true,
	"DF": true, "ES": true, "GO": true, "MA": true, "MT": true, "MS": true,
	"MG": true, "PA": true, "PB": true, "PR": true, "PE": true, "PI": true,
	"RJ": true, "RN": true, "RS": true, "RO": true, "RR": true, "SC": true,
	"SP": true, "SE": true, "TO": true,
}

// NCMCategoryRule maps an NCM prefix to a product category and its
// monophasic PIS/COFINS treatment.
type NCMCategoryRule struct {
	Prefix     string `yaml:"prefixo"`
	Category   string `yaml:"categoria"`
	Monophasic bool   `yaml:"monofasico"`
	LegalBasis string `yaml:"base_legal,omitempty"`
}

type ncmTableFile struct {
	Version string            `yaml:"versao"`
	Rules   []NCMCategoryRule `yaml:"regras"`
}

// VedationRuleset lists the NCMs a program refuses: exact/prefix entries
// plus glob-style wildcard patterns (e.g. "87*").
type VedationRuleset struct {
	Blacklist []string `yaml:"ncm_vedados"`
	Wildcards []string `yaml:"padroes_vedados"`
}

// IncentiveProgram is one state incentive entry: the deferral percentage it
// grants, the benefit code stamped on outgoing fiscal documents and the
// vedation ruleset that disqualifies products.
type IncentiveProgram struct {
	UF        string          `yaml:"uf"`
	Code      string          `yaml:"codigo"`
	Name      string          `yaml:"nome"`
	PDif      decimal.Decimal `yaml:"p_dif"`
	CBenef    string          `yaml:"c_benef"`
	Vedations VedationRuleset `yaml:"vedacoes"`
}

type incentiveTableFile struct {
	Version  string             `yaml:"versao"`
	Programs []IncentiveProgram `yaml:"programas"`
}

type icmsRateTableFile struct {
	Version string                     `yaml:"versao"`
	Rates   map[string]decimal.Decimal `yaml:"aliquotas"`
}

// ReformScheduleEntry is one year of the 2025-2033 transition: how much of
// the ICMS benefit survives and how far the replacement tax (CBS/IBS) has
// been phased in, both as percentages 0-100.
type ReformScheduleEntry struct {
	Year           int             `yaml:"ano"`
	RetentionPct   decimal.Decimal `yaml:"retencao_beneficio_pct"`
	ReplacementPct decimal.Decimal `yaml:"imposto_substituto_pct"`
}

type reformScheduleFile struct {
	Version string                `yaml:"versao"`
	Entries []ReformScheduleEntry `yaml:"cronograma"`
}

type regimeTableFile struct {
	Version string        `yaml:"versao"`
	Regimes []RegimeRules `yaml:"regimes"`
}

// Tables is the read-only fiscal configuration snapshot. It is loaded once
// at startup and shared by every concurrent calculation without locking;
// nothing mutates it after LoadTables returns. Processors receive it
// explicitly through their constructors.
type Tables struct {
	Regimes   map[TaxRegime]RegimeRules
	NCMRules  []NCMCategoryRule // ordered longest-prefix-first
	Programs  map[string]IncentiveProgram
	ICMSRates map[string]decimal.Decimal // UF -> nominal rate, percent
	Reform    []ReformScheduleEntry      // ascending, contiguous years

	versions map[string]string // file -> declared pack version
}

// LoadTables reads and validates the five fiscal data files under dir.
// Any structural problem aborts the load; the engine never starts with a
// partially valid snapshot.
func LoadTables(dir string) (*Tables, error) {
	t := &Tables{
		Regimes:   make(map[TaxRegime]RegimeRules),
		Programs:  make(map[string]IncentiveProgram),
		ICMSRates: make(map[string]decimal.Decimal),
		versions:  make(map[string]string),
	}

	var regimes regimeTableFile
	if err := decodeStrict(filepath.Join(dir, regimesFile), &regimes); err != nil {
		return nil, err
	}
	if err := t.setRegimes(regimes); err != nil {
		return nil, fmt.Errorf("%s: %w", regimesFile, err)
	}

	var ncm ncmTableFile
	if err := decodeStrict(filepath.Join(dir, ncmFile), &ncm); err != nil {
		return nil, err
	}
	if err := t.setNCMRules(ncm); err != nil {
		return nil, fmt.Errorf("%s: %w", ncmFile, err)
	}

	var incentives incentiveTableFile
	if err := decodeStrict(filepath.Join(dir, incentivesFile), &incentives); err != nil {
		return nil, err
	}
	if err := t.setPrograms(incentives); err != nil {
		return nil, fmt.Errorf("%s: %w", incentivesFile, err)
	}

	var rates icmsRateTableFile
	if err := decodeStrict(filepath.Join(dir, icmsRatesFile), &rates); err != nil {
		return nil, err
	}
	if err := t.setICMSRates(rates); err != nil {
		return nil, fmt.Errorf("%s: %w", icmsRatesFile, err)
	}

	var reform reformScheduleFile
	if err := decodeStrict(filepath.Join(dir, reformFile), &reform); err != nil {
		return nil, err
	}
	if err := t.setReform(reform); err != nil {
		return nil, fmt.Errorf("%s: %w", reformFile, err)
	}

	return t, nil
}

// decodeStrict unmarshals a YAML file rejecting unknown keys, so typos in a
// fiscal data pack fail the load instead of being silently dropped.
func decodeStrict(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fiscal data file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (t *Tables) setRegimes(file regimeTableFile) error {
	if file.Version == "" {
		return fmt.Errorf("missing pack version")
	}
	t.versions[regimesFile] = file.Version
	for _, r := range file.Regimes {
		if err := r.validate(); err != nil {
			return err
		}
		if _, dup := t.Regimes[r.Regime]; dup {
			return fmt.Errorf("duplicate regime entry %q", r.Regime)
		}
		t.Regimes[r.Regime] = r
	}
	// O conjunto é fechado: os três regimes têm de estar presentes.
	for _, required := range []TaxRegime{RegimeLucroReal, RegimeLucroPresumido, RegimeSimplesNacional} {
		if _, ok := t.Regimes[required]; !ok {
			return &MissingConfigurationError{Entry: string(required), Detail: "regime entry absent from table"}
		}
	}
	return nil
}

func (t *Tables) setNCMRules(file ncmTableFile) error {
	if file.Version == "" {
		return fmt.Errorf("missing pack version")
	}
	t.versions[ncmFile] = file.Version
	seen := make(map[string]bool, len(file.Rules))
	for _, rule := range file.Rules {
		if !isNCMPrefix(rule.Prefix) {
			return fmt.Errorf("invalid NCM prefix %q (want 2-8 digits)", rule.Prefix)
		}
		if rule.Category == "" {
			return fmt.Errorf("NCM prefix %q has empty category", rule.Prefix)
		}
		if seen[rule.Prefix] {
			return fmt.Errorf("duplicate NCM prefix %q", rule.Prefix)
		}
		seen[rule.Prefix] = true
	}
	rules := make([]NCMCategoryRule, len(file.Rules))
	copy(rules, file.Rules)
	// Prefixos mais longos primeiro; a ordem do ficheiro desempata, o que
	// torna a precedência determinística e testável.
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].Prefix) > len(rules[j].Prefix)
	})
	t.NCMRules = rules
	return nil
}

func (t *Tables) setPrograms(file incentiveTableFile) error {
	if file.Version == "" {
		return fmt.Errorf("missing pack version")
	}
	t.versions[incentivesFile] = file.Version
	for _, p := range file.Programs {
		key := programKey(p.UF, p.Code)
		if !brazilianUFs[p.UF] {
			return fmt.Errorf("program %s: unknown UF %q", p.Code, p.UF)
		}
		if p.Code == "" {
			return fmt.Errorf("program for UF %s has empty code", p.UF)
		}
		if p.CBenef == "" {
			return &MissingConfigurationError{Entry: key, Detail: "c_benef literal absent"}
		}
		if p.PDif.LessThan(decimal.Zero) || p.PDif.GreaterThan(hundred) {
			return &MissingConfigurationError{Entry: key, Detail: "p_dif outside [0,100]"}
		}
		for _, ncm := range p.Vedations.Blacklist {
			if !isNCMPrefix(ncm) {
				return fmt.Errorf("program %s: invalid blacklisted NCM %q", key, ncm)
			}
		}
		for _, pattern := range p.Vedations.Wildcards {
			if !isWildcardPattern(pattern) {
				return fmt.Errorf("program %s: invalid wildcard pattern %q", key, pattern)
			}
		}
		if _, dup := t.Programs[key]; dup {
			return fmt.Errorf("duplicate program entry %s", key)
		}
		t.Programs[key] = p
	}
	return nil
}

func (t *Tables) setICMSRates(file icmsRateTableFile) error {
	if file.Version == "" {
		return fmt.Errorf("missing pack version")
	}
	t.versions[icmsRatesFile] = file.Version
	for uf, rate := range file.Rates {
		if !brazilianUFs[uf] {
			return fmt.Errorf("ICMS rate table: unknown UF %q", uf)
		}
		if rate.LessThanOrEqual(decimal.Zero) || rate.GreaterThanOrEqual(hundred) {
			return fmt.Errorf("ICMS rate table: rate for %s outside (0,100)", uf)
		}
		t.ICMSRates[uf] = rate
	}
	return nil
}

func (t *Tables) setReform(file reformScheduleFile) error {
	if file.Version == "" {
		return fmt.Errorf("missing pack version")
	}
	t.versions[reformFile] = file.Version
	if len(file.Entries) == 0 {
		return fmt.Errorf("empty reform schedule")
	}
	entries := make([]ReformScheduleEntry, len(file.Entries))
	copy(entries, file.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Year < entries[j].Year })

	for i, e := range entries {
		if e.RetentionPct.LessThan(decimal.Zero) || e.RetentionPct.GreaterThan(hundred) {
			return fmt.Errorf("reform schedule %d: retention percent outside [0,100]", e.Year)
		}
		if e.ReplacementPct.LessThan(decimal.Zero) || e.ReplacementPct.GreaterThan(hundred) {
			return fmt.Errorf("reform schedule %d: replacement percent outside [0,100]", e.Year)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.Year != prev.Year+1 {
			return fmt.Errorf("reform schedule: gap between %d and %d", prev.Year, e.Year)
		}
		// A retenção nunca sobe e o imposto substituto nunca recua.
		if e.RetentionPct.GreaterThan(prev.RetentionPct) {
			return fmt.Errorf("reform schedule: retention increases from %d to %d", prev.Year, e.Year)
		}
		if e.ReplacementPct.LessThan(prev.ReplacementPct) {
			return fmt.Errorf("reform schedule: replacement decreases from %d to %d", prev.Year, e.Year)
		}
	}
	t.Reform = entries
	return nil
}

// RulesFor returns the credit rules of a regime.
func (t *Tables) RulesFor(regime TaxRegime) (RegimeRules, error) {
	rules, ok := t.Regimes[regime]
	if !ok {
		return RegimeRules{}, &MissingConfigurationError{Entry: string(regime), Detail: "regime entry absent from table"}
	}
	return rules, nil
}

// Program resolves an incentive program by its (state, code) pair.
func (t *Tables) Program(uf, code string) (IncentiveProgram, error) {
	p, ok := t.Programs[programKey(uf, code)]
	if !ok {
		return IncentiveProgram{}, &UnknownProgramError{UF: uf, Program: code}
	}
	return p, nil
}

// ListPrograms returns every registered incentive program, sorted by UF and
// code for deterministic listings.
func (t *Tables) ListPrograms() []IncentiveProgram {
	programs := make([]IncentiveProgram, 0, len(t.Programs))
	for _, p := range t.Programs {
		programs = append(programs, p)
	}
	sort.Slice(programs, func(i, j int) bool {
		if programs[i].UF != programs[j].UF {
			return programs[i].UF < programs[j].UF
		}
		return programs[i].Code < programs[j].Code
	})
	return programs
}

// ICMSRate returns the nominal ICMS rate (percent) for a state.
func (t *Tables) ICMSRate(uf string) (decimal.Decimal, error) {
	rate, ok := t.ICMSRates[uf]
	if !ok {
		return decimal.Decimal{}, &UnknownStateError{UF: uf}
	}
	return rate, nil
}

// ReformBounds returns the first and last year covered by the schedule.
func (t *Tables) ReformBounds() (first, last int) {
	if len(t.Reform) == 0 {
		return 0, 0
	}
	return t.Reform[0].Year, t.Reform[len(t.Reform)-1].Year
}

// PackVersion returns the declared version of one of the loaded data files.
func (t *Tables) PackVersion(filename string) string {
	return t.versions[filename]
}

// Versions returns a copy of the declared pack versions, keyed by file name.
func (t *Tables) Versions() map[string]string {
	out := make(map[string]string, len(t.versions))
	for file, version := range t.versions {
		out[file] = version
	}
	return out
}

func programKey(uf, code string) string {
	return uf + "/" + code
}

func isNCMPrefix(s string) bool {
	if len(s) < 2 || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isWildcardPattern accepts glob-style prefix patterns such as "87*": one or
// more leading digits followed by a single trailing asterisk.
func isWildcardPattern(s string) bool {
	if !strings.HasSuffix(s, "*") {
		return false
	}
	head := strings.TrimSuffix(s, "*")
	if head == "" || len(head) > 8 {
		return false
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
