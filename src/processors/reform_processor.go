// src/processors/reform_processor.go
package processors

import (
	"github.com/username/custoimport/src/fiscal"
	"github.com/username/custoimport/src/models"
)

// reformProcessorImpl implements the ReformProcessor interface over the
// year-indexed reform schedule. The schedule is data, not a formula: the
// loader already checked it is contiguous and monotonic, so projection is a
// plain slice walk.
type reformProcessorImpl struct {
	schedule []fiscal.ReformScheduleEntry
	first    int
	last     int
}

// NewReformProcessor creates a new instance of ReformProcessor bound to a
// fiscal configuration snapshot.
func NewReformProcessor(tables *fiscal.Tables) ReformProcessor {
	first, last := tables.ReformBounds()
	return &reformProcessorImpl{schedule: tables.Reform, first: first, last: last}
}

// ProjectScenarios returns one scenario per year from startYear through the
// schedule's terminal year. Years before the first or after the last entry
// fail with InvalidYearError; the projector never extrapolates.
func (p *reformProcessorImpl) ProjectScenarios(startYear int) ([]models.ReformScenario, error) {
	if len(p.schedule) == 0 {
		return nil, &fiscal.MissingConfigurationError{Entry: "reforma", Detail: "empty reform schedule"}
	}
	if startYear < p.first || startYear > p.last {
		return nil, &fiscal.InvalidYearError{Year: startYear, First: p.first, Last: p.last}
	}

	scenarios := make([]models.ReformScenario, 0, p.last-startYear+1)
	for _, entry := range p.schedule {
		if entry.Year < startYear {
			continue
		}
		scenarios = append(scenarios, models.ReformScenario{
			Year:           entry.Year,
			RetentionPct:   entry.RetentionPct,
			ReplacementPct: entry.ReplacementPct,
			Phase:          classifyPhase(entry),
		})
	}
	return scenarios, nil
}

// classifyPhase derives the transition phase from the entry's own values,
// so reclassification never lags a schedule update.
func classifyPhase(entry fiscal.ReformScheduleEntry) models.ReformPhase {
	switch {
	case entry.RetentionPct.Equal(oneHundred):
		return models.PhaseAtual
	case entry.RetentionPct.IsZero() && entry.ReplacementPct.Equal(oneHundred):
		return models.PhaseSistemaNovo
	default:
		return models.PhaseReducaoGradual
	}
}
