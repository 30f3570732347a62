package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/regcascade/internal/ledger"
)

// InvocationModel is the database row for the invocations table.
// Path lists are JSON encoded; times are Unix milliseconds.
type InvocationModel struct {
	ID            string
	Job           string
	Dialect       string
	Args          string
	Inputs        string
	Outputs       string
	PrimaryOutput string
	Status        string
	ExitCode      int
	Stderr        *string // nullable
	Error         *string // nullable
	StartedAt     int64
	DurationMs    int64
}

// toInvocationModel converts a ledger record to a row.
func toInvocationModel(r *ledger.Record) (*InvocationModel, error) {
	args, err := encodeList(r.Args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	inputs, err := encodeList(r.Inputs)
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}
	outputs, err := encodeList(r.Outputs)
	if err != nil {
		return nil, fmt.Errorf("encode outputs: %w", err)
	}

	m := &InvocationModel{
		ID:            r.ID,
		Job:           r.Job,
		Dialect:       r.Dialect,
		Args:          args,
		Inputs:        inputs,
		Outputs:       outputs,
		PrimaryOutput: r.PrimaryOutput(),
		Status:        string(r.Status),
		ExitCode:      r.ExitCode,
		StartedAt:     r.StartedAt.UnixMilli(),
		DurationMs:    r.Duration.Milliseconds(),
	}
	if r.Stderr != "" {
		stderr := r.Stderr
		m.Stderr = &stderr
	}
	if r.Error != "" {
		msg := r.Error
		m.Error = &msg
	}
	return m, nil
}

// toDomain converts a row back to a ledger record.
func (m *InvocationModel) toDomain() (*ledger.Record, error) {
	r := &ledger.Record{
		ID:        m.ID,
		Job:       m.Job,
		Dialect:   m.Dialect,
		Status:    ledger.Status(m.Status),
		ExitCode:  m.ExitCode,
		StartedAt: time.UnixMilli(m.StartedAt),
		Duration:  time.Duration(m.DurationMs) * time.Millisecond,
	}
	if m.Stderr != nil {
		r.Stderr = *m.Stderr
	}
	if m.Error != nil {
		r.Error = *m.Error
	}
	var err error
	if r.Args, err = decodeList(m.Args); err != nil {
		return nil, fmt.Errorf("decode args of %s: %w", m.ID, err)
	}
	if r.Inputs, err = decodeList(m.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs of %s: %w", m.ID, err)
	}
	if r.Outputs, err = decodeList(m.Outputs); err != nil {
		return nil, fmt.Errorf("decode outputs of %s: %w", m.ID, err)
	}
	return r, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

func decodeList(s string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, err
	}
	return list, nil
}
