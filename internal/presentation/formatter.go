// Package presentation renders ledger records, plans and batch results as JSON.
package presentation

import (
	"encoding/json"
	"io"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatInvocations formats ledger records as JSON
func (f *Formatter) FormatInvocations(records []InvocationDTO) error {
	return f.encode(records)
}

// FormatInvocation formats a single ledger record as JSON
func (f *Formatter) FormatInvocation(record InvocationDTO) error {
	return f.encode(record)
}

// FormatPlan formats an assembled plan as JSON
func (f *Formatter) FormatPlan(plan PlanDTO) error {
	return f.encode(plan)
}

// FormatResults formats batch results as JSON
func (f *Formatter) FormatResults(results []ResultDTO) error {
	return f.encode(results)
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
