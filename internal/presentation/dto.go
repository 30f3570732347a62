package presentation

import (
	"time"

	"github.com/zjrosen/regcascade/internal/batch"
	"github.com/zjrosen/regcascade/internal/command"
	"github.com/zjrosen/regcascade/internal/ledger"
)

// InvocationDTO represents a ledger record for presentation
type InvocationDTO struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	Dialect    string    `json:"dialect"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Args       []string  `json:"args"`
	Inputs     []string  `json:"inputs"`
	Outputs    []string  `json:"outputs"`
	Stderr     string    `json:"stderr,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// TermDTO is one rule-tagged group of arguments.
type TermDTO struct {
	Rule   string   `json:"rule"`
	Tokens []string `json:"tokens"`
}

// PlanDTO represents an assembled invocation.
type PlanDTO struct {
	Dialect     string    `json:"dialect"`
	Terms       []TermDTO `json:"terms"`
	Args        []string  `json:"args"`
	Inputs      []string  `json:"inputs"`
	Outputs     []string  `json:"outputs"`
	SideEffects []string  `json:"side_effects"`
}

// ResultDTO is the outcome of one batch job.
type ResultDTO struct {
	Path   string `json:"path"`
	Job    string `json:"job"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// FromRecord converts a ledger record to a DTO
func FromRecord(r *ledger.Record) InvocationDTO {
	return InvocationDTO{
		ID:         r.ID,
		Job:        r.Job,
		Dialect:    r.Dialect,
		Status:     string(r.Status),
		ExitCode:   r.ExitCode,
		Args:       nonNil(r.Args),
		Inputs:     nonNil(r.Inputs),
		Outputs:    nonNil(r.Outputs),
		Stderr:     r.Stderr,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
	}
}

// FromRecords converts a slice of ledger records to DTOs
func FromRecords(records []*ledger.Record) []InvocationDTO {
	dtos := make([]InvocationDTO, len(records))
	for i, r := range records {
		dtos[i] = FromRecord(r)
	}
	return dtos
}

// FromPlan converts a plan to a DTO
func FromPlan(p *command.Plan) PlanDTO {
	terms := p.Terms()
	dtos := make([]TermDTO, len(terms))
	for i, t := range terms {
		dtos[i] = TermDTO{Rule: string(t.Rule()), Tokens: t.Tokens()}
	}
	return PlanDTO{
		Dialect:     p.Dialect().String(),
		Terms:       dtos,
		Args:        p.Args(),
		Inputs:      nonNil(p.Inputs()),
		Outputs:     nonNil(p.Outputs()),
		SideEffects: nonNil(p.SideEffects()),
	}
}

// FromResults converts batch results to DTOs. Errors mark a job failed.
func FromResults(results []batch.Result) []ResultDTO {
	dtos := make([]ResultDTO, len(results))
	for i, r := range results {
		d := ResultDTO{Path: r.Path, Job: r.Job, ID: r.Outcome.ID, Status: string(r.Outcome.Status)}
		if r.Err != nil {
			d.Status = string(ledger.StatusFailed)
			d.Error = r.Err.Error()
		}
		dtos[i] = d
	}
	return dtos
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
