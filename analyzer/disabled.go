package analyzer

import "context"

// Disabled is the Port used when ANALYZER_MODE=disabled. Every call fails
// as UNAVAILABLE so fusion takes its fallback branch.
type Disabled struct{}

// Analyze implements Port
func (Disabled) Analyze(ctx context.Context, _ Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{}, &Failure{Kind: FailureUnavailable, Detail: "analyzer disabled"}
}

// Name implements Port
func (Disabled) Name() string { return "disabled" }

// Version implements Port
func (Disabled) Version() string { return "none" }
