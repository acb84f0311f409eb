package domain

// Request statuses.
const (
	RequestDraft      = "DRAFT"
	RequestPublished  = "PUBLISHED"
	RequestMatching   = "MATCHING"
	RequestBooked     = "BOOKED"
	RequestInProgress = "IN_PROGRESS"
	RequestCompleted  = "COMPLETED"
	RequestCancelled  = "CANCELLED"
)

// Offer statuses.
const (
	OfferPending   = "PENDING"
	OfferAccepted  = "ACCEPTED"
	OfferDeclined  = "DECLINED"
	OfferWithdrawn = "WITHDRAWN"
)

// Booking statuses.
const (
	BookingConfirmed = "CONFIRMED"
	BookingCompleted = "COMPLETED"
	BookingCancelled = "CANCELLED"
)

// Engagement statuses.
const (
	EngagementActive      = "ACTIVE"
	EngagementPaused      = "PAUSED"
	EngagementCompleted   = "COMPLETED"
	EngagementTransferred = "TRANSFERRED"
)

// Payment statuses, written only by the external processor callback.
const (
	PaymentPending   = "PENDING"
	PaymentSucceeded = "SUCCEEDED"
	PaymentFailed    = "FAILED"
)

// Urgency levels.
const (
	UrgencyLow    = "LOW"
	UrgencyNormal = "NORMAL"
	UrgencyHigh   = "HIGH"
	UrgencyUrgent = "URGENT"
)

type Request struct {
	ID                    string   `json:"id"`
	CreatorID             string   `json:"creator_id"`
	Title                 string   `json:"title"`
	RawDescription        string   `json:"raw_description"`
	RefinedSummary        *string  `json:"refined_summary,omitempty"`
	Constraints           *string  `json:"constraints,omitempty"`
	DesiredOutcome        *string  `json:"desired_outcome,omitempty"`
	Urgency               string   `json:"urgency" enum:"LOW,NORMAL,HIGH,URGENT"`
	BudgetCents           *int64   `json:"budget_cents,omitempty"`
	Currency              string   `json:"currency"`
	SuggestedDurationMins *int     `json:"suggested_duration_mins,omitempty"`
	IsPublic              bool     `json:"is_public"`
	Status                string   `json:"status" enum:"DRAFT,PUBLISHED,MATCHING,BOOKED,IN_PROGRESS,COMPLETED,CANCELLED"`
	Skills                []string `json:"skills,omitempty"`
	CreatedAt             string   `json:"created_at" format:"date-time"`
	UpdatedAt             string   `json:"updated_at" format:"date-time"`
}

type Offer struct {
	ID                string  `json:"id"`
	RequestID         string  `json:"request_id"`
	ConsultantID      string  `json:"consultant_id"`
	Message           *string `json:"message,omitempty"`
	ProposedRateCents int64   `json:"proposed_rate_cents"`
	Status            string  `json:"status" enum:"PENDING,ACCEPTED,DECLINED,WITHDRAWN"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

// Booking is created exactly once per accepted Offer. Client, consultant and
// request references never change after creation.
type Booking struct {
	ID             string  `json:"id"`
	RequestID      *string `json:"request_id,omitempty"`
	ClientID       string  `json:"client_id"`
	ConsultantID   string  `json:"consultant_id"`
	ScheduledStart *string `json:"scheduled_start,omitempty" format:"date-time"`
	DurationMins   int     `json:"duration_mins"`
	Status         string  `json:"status" enum:"CONFIRMED,COMPLETED,CANCELLED"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Payment struct {
	ID          string  `json:"id"`
	BookingID   string  `json:"booking_id"`
	Status      string  `json:"status" enum:"PENDING,SUCCEEDED,FAILED"`
	AmountCents int64   `json:"amount_cents"`
	Currency    string  `json:"currency"`
	ProviderRef *string `json:"provider_ref,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Engagement struct {
	ID        string  `json:"id"`
	BookingID string  `json:"booking_id"`
	Status    string  `json:"status" enum:"ACTIVE,PAUSED,COMPLETED,TRANSFERRED"`
	Agenda    *string `json:"agenda,omitempty"`
	VideoLink *string `json:"video_link,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
	EndedAt   *string `json:"ended_at,omitempty" format:"date-time"`
}

type Message struct {
	ID           string `json:"id"`
	EngagementID string `json:"engagement_id"`
	AuthorID     string `json:"author_id"`
	Body         string `json:"body"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Note struct {
	ID           string  `json:"id"`
	EngagementID string  `json:"engagement_id"`
	AuthorID     string  `json:"author_id"`
	Title        *string `json:"title,omitempty"`
	Content      string  `json:"content"`
	IsPrivate    bool    `json:"is_private"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type ChecklistItem struct {
	ID           string `json:"id"`
	EngagementID string `json:"engagement_id"`
	Text         string `json:"text"`
	IsCompleted  bool   `json:"is_completed"`
	Order        int    `json:"order"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type TransferPack struct {
	ID                       string  `json:"id"`
	EngagementID             string  `json:"engagement_id"`
	Summary                  string  `json:"summary"`
	KeyDecisions             string  `json:"key_decisions"`
	Runbook                  string  `json:"runbook,omitempty"`
	NextSteps                string  `json:"next_steps,omitempty"`
	InternalizationChecklist string  `json:"internalization_checklist,omitempty"`
	AIGenerated              bool    `json:"ai_generated"`
	IsFinalized              bool    `json:"is_finalized"`
	CreatedAt                string  `json:"created_at" format:"date-time"`
	UpdatedAt                string  `json:"updated_at" format:"date-time"`
	FinalizedAt              *string `json:"finalized_at,omitempty" format:"date-time"`
}

type AuditLogEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Metadata   string `json:"metadata_json"`
}

type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type ConsultantProfile struct {
	ActorID         string   `json:"actor_id"`
	Headline        string   `json:"headline"`
	Bio             *string  `json:"bio,omitempty"`
	HourlyRateCents int64    `json:"hourly_rate_cents"`
	Currency        string   `json:"currency"`
	Skills          []string `json:"skills,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

type Skill struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
