package command

// Rule names the assembly rule that produced a term.
type Rule string

const (
	RulePreamble          Rule = "preamble"
	RuleMetric            Rule = "metric"
	RuleConvergence       Rule = "convergence"
	RuleShrink            Rule = "shrink-factors"
	RuleSmoothing         Rule = "smoothing-sigmas"
	RuleTransform         Rule = "transform"
	RuleOutput            Rule = "output"
	RuleInitialTransform  Rule = "initial-transform"
	RulePerStageInit      Rule = "per-stage-init"
	RuleFixedInit         Rule = "fixed-init"
	RuleMovingInit        Rule = "moving-init"
	RuleFixedZeroInit     Rule = "fixed-zero-init"
	RuleMovingZeroInit    Rule = "moving-zero-init"
	RuleMask              Rule = "mask"
	RuleHistogramMatching Rule = "histogram-matching"
	RuleWinsorize         Rule = "winsorize"
	RuleFloat             Rule = "float"
	RuleVerbose           Rule = "verbose"
)

// Term is one immutable group of argv tokens.
type Term struct {
	rule   Rule
	tokens []string
}

func newTerm(rule Rule, tokens ...string) Term {
	return Term{rule: rule, tokens: append([]string(nil), tokens...)}
}

// Rule returns the rule that produced the term.
func (t Term) Rule() Rule { return t.rule }

// Tokens returns a copy of the term's argv tokens.
func (t Term) Tokens() []string {
	return append([]string(nil), t.tokens...)
}

// Flag returns the first token, usually the option name.
func (t Term) Flag() string {
	if len(t.tokens) == 0 {
		return ""
	}
	return t.tokens[0]
}

// Value returns the last token, usually the option value.
func (t Term) Value() string {
	if len(t.tokens) == 0 {
		return ""
	}
	return t.tokens[len(t.tokens)-1]
}
