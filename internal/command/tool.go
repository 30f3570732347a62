package command

import (
	"strings"

	"github.com/zjrosen/regcascade/internal/errs"
)

// RuleTool tags the single term of an auxiliary tool plan.
const RuleTool Rule = "tool"

// Placeholders recognised in tool argv templates.
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
	PlaceholderStep   = "{step}"
)

// ExpandTemplate substitutes placeholders in every token of template.
func ExpandTemplate(template []string, input, output, step string) []string {
	r := strings.NewReplacer(PlaceholderInput, input, PlaceholderOutput, output, PlaceholderStep, step)
	out := make([]string, len(template))
	for i, tok := range template {
		out[i] = r.Replace(tok)
	}
	return out
}

// ToolPlan wraps an arbitrary argv into a gated plan with one input and one output.
func ToolPlan(args []string, input, output string) (*Plan, error) {
	if len(args) == 0 {
		return nil, errs.Configf("resample", "empty tool command")
	}
	if output == "" {
		return nil, errs.Configf("resample", "tool output path is required")
	}
	return &Plan{
		dialect: DialectTool,
		terms:   []Term{newTerm(RuleTool, args...)},
		inputs:  []string{input},
		outputs: []string{output},
	}, nil
}
