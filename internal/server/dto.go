package server

// Request payloads. Responses reuse the domain types directly.

type ProfileUpsertBody struct {
	Headline        string   `json:"headline" minLength:"1"`
	Bio             *string  `json:"bio,omitempty"`
	HourlyRateCents int64    `json:"hourly_rate_cents" minimum:"1"`
	Currency        string   `json:"currency,omitempty"`
	Skills          []string `json:"skills,omitempty"`
}

type RequestCreateBody struct {
	Title                 string   `json:"title" minLength:"1"`
	Description           string   `json:"description" minLength:"1"`
	Constraints           *string  `json:"constraints,omitempty"`
	DesiredOutcome        *string  `json:"desired_outcome,omitempty"`
	Urgency               string   `json:"urgency,omitempty" enum:"LOW,NORMAL,HIGH,URGENT"`
	BudgetCents           *int64   `json:"budget_cents,omitempty"`
	Currency              string   `json:"currency,omitempty"`
	SuggestedDurationMins *int     `json:"suggested_duration_mins,omitempty"`
	IsPublic              *bool    `json:"is_public,omitempty"`
	Skills                []string `json:"skills,omitempty"`
}

type RequestUpdateBody struct {
	Title                 *string  `json:"title,omitempty"`
	Description           *string  `json:"description,omitempty"`
	Constraints           *string  `json:"constraints,omitempty"`
	DesiredOutcome        *string  `json:"desired_outcome,omitempty"`
	Urgency               *string  `json:"urgency,omitempty" enum:"LOW,NORMAL,HIGH,URGENT"`
	BudgetCents           *int64   `json:"budget_cents,omitempty"`
	Currency              *string  `json:"currency,omitempty"`
	SuggestedDurationMins *int     `json:"suggested_duration_mins,omitempty"`
	IsPublic              *bool    `json:"is_public,omitempty"`
	Skills                []string `json:"skills,omitempty"`
}

type OfferCreateBody struct {
	RequestID string  `json:"request_id" minLength:"1"`
	Message   *string `json:"message,omitempty"`
	// Defaults to the consultant's profile rate when omitted.
	ProposedRateCents *int64 `json:"proposed_rate_cents,omitempty" minimum:"1"`
}

type RequestCancelBody struct {
	Reason string `json:"reason,omitempty"`
}

type OfferDeclineBody struct {
	Reason string `json:"reason,omitempty"`
}

type OfferAcceptBody struct {
	ScheduledStart *string `json:"scheduled_start,omitempty" format:"date-time"`
	DurationMins   *int    `json:"duration_mins,omitempty"`
}

type EngagementUpdateBody struct {
	Agenda    *string `json:"agenda,omitempty"`
	VideoLink *string `json:"video_link,omitempty"`
	Status    *string `json:"status,omitempty" enum:"ACTIVE,PAUSED"`
}

type NoteCreateBody struct {
	Title     *string `json:"title,omitempty"`
	Content   string  `json:"content" minLength:"1"`
	IsPrivate bool    `json:"is_private,omitempty"`
}

type PackUpdateBody struct {
	Summary                  *string `json:"summary,omitempty"`
	KeyDecisions             *string `json:"key_decisions,omitempty"`
	Runbook                  *string `json:"runbook,omitempty"`
	NextSteps                *string `json:"next_steps,omitempty"`
	InternalizationChecklist *string `json:"internalization_checklist,omitempty"`
}

type PaymentCallbackBody struct {
	BookingID   string  `json:"booking_id" minLength:"1"`
	Status      string  `json:"status" enum:"PENDING,SUCCEEDED,FAILED"`
	ProviderRef *string `json:"provider_ref,omitempty"`
}
