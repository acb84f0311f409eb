// Package draft defines the text-generation collaborator consumed by the
// lifecycle engine. Implementations are best-effort: a failure is returned as
// an error for the caller to surface, never as a partial result.
package draft

import "context"

// RequestContext is the structured view of a consultation request handed to
// the drafting service.
type RequestContext struct {
	Title          string
	RawDescription string
	Constraints    string
	DesiredOutcome string
	Urgency        string
	Skills         []string
}

// Exchange is a single chat message in chronological order.
type Exchange struct {
	Author string
	Body   string
}

// ChecklistLine is one checklist entry with completion state.
type ChecklistLine struct {
	Text string
	Done bool
}

// PackContext assembles everything a transfer pack draft is based on:
// request context, the ordered message history, non-private notes and the
// checklist.
type PackContext struct {
	Request   RequestContext
	Messages  []Exchange
	Notes     []string
	Checklist []ChecklistLine
}

// Pack is the drafted transfer-pack prose.
type Pack struct {
	Summary                  string `json:"summary"`
	KeyDecisions             string `json:"key_decisions"`
	Runbook                  string `json:"runbook"`
	NextSteps                string `json:"next_steps"`
	InternalizationChecklist string `json:"internalization_checklist"`
}

// Candidate is a consultant profile offered for match explanation.
type Candidate struct {
	ConsultantID    string
	Headline        string
	Skills          []string
	HourlyRateCents int64
}

// Service produces drafted text from structured context.
type Service interface {
	// RefineRequest returns a polished summary of a raw request description.
	RefineRequest(ctx context.Context, rc RequestContext) (string, error)
	// DraftPack returns a drafted transfer pack.
	DraftPack(ctx context.Context, pc PackContext) (Pack, error)
	// ExplainMatches returns one explanation per candidate, in order.
	ExplainMatches(ctx context.Context, rc RequestContext, candidates []Candidate) ([]string, error)
}
