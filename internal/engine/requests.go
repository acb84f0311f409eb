package engine

import (
	"context"
	"strings"

	"expertline/internal/audit"
	"expertline/internal/domain"
	"expertline/internal/draft"
	"expertline/internal/engine/access"
	"expertline/internal/repo"
)

// RequestCreateOptions are parameters for drafting a new request.
type RequestCreateOptions struct {
	Title                 string
	RawDescription        string
	Constraints           *string
	DesiredOutcome        *string
	Urgency               string
	BudgetCents           *int64
	Currency              string
	SuggestedDurationMins *int
	IsPublic              *bool
	Skills                []string
}

var validUrgencies = map[string]bool{
	domain.UrgencyLow:    true,
	domain.UrgencyNormal: true,
	domain.UrgencyHigh:   true,
	domain.UrgencyUrgent: true,
}

func (e Engine) CreateRequest(ctx context.Context, p access.Principal, opts RequestCreateOptions) (domain.Request, error) {
	if err := access.Check(p, access.AuthenticatedOnly, access.Entity{}); err != nil {
		return domain.Request{}, classify(err)
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Request{}, Errf(CodeValidation, "title is required")
	}
	if strings.TrimSpace(opts.RawDescription) == "" {
		return domain.Request{}, Errf(CodeValidation, "description is required")
	}
	if opts.Urgency == "" {
		opts.Urgency = domain.UrgencyNormal
	}
	if !validUrgencies[opts.Urgency] {
		return domain.Request{}, Errf(CodeValidation, "urgency %s not recognized", opts.Urgency)
	}
	if opts.BudgetCents != nil && *opts.BudgetCents < 0 {
		return domain.Request{}, Errf(CodeValidation, "budget must not be negative")
	}
	if opts.SuggestedDurationMins != nil && *opts.SuggestedDurationMins <= 0 {
		return domain.Request{}, Errf(CodeValidation, "suggested duration must be positive")
	}
	currency := opts.Currency
	if currency == "" {
		currency = e.Config.Booking.DefaultCurrency
	}
	isPublic := true
	if opts.IsPublic != nil {
		isPublic = *opts.IsPublic
	}
	now := e.nowRFC3339()
	rq := domain.Request{
		ID:                    e.newID(),
		CreatorID:             p.ActorID,
		Title:                 strings.TrimSpace(opts.Title),
		RawDescription:        opts.RawDescription,
		Constraints:           opts.Constraints,
		DesiredOutcome:        opts.DesiredOutcome,
		Urgency:               opts.Urgency,
		BudgetCents:           opts.BudgetCents,
		Currency:              currency,
		SuggestedDurationMins: opts.SuggestedDurationMins,
		IsPublic:              isPublic,
		Status:                domain.RequestDraft,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, err
	}
	defer tx.Rollback()

	if err := e.EnsureActor(ctx, tx, p); err != nil {
		return domain.Request{}, err
	}
	if err := e.Repo.InsertRequest(ctx, tx, rq); err != nil {
		return domain.Request{}, err
	}
	if len(opts.Skills) > 0 {
		if err := e.Repo.ReplaceRequestSkills(ctx, tx, rq.ID, opts.Skills, e.newID); err != nil {
			return domain.Request{}, err
		}
		rq.Skills = normalizeSkills(opts.Skills)
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "request.created", "request", rq.ID, audit.Metadata{"status": rq.Status}); err != nil {
		return domain.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, err
	}
	return rq, nil
}

// RequestUpdateOptions patches a draft or published request. Nil fields are
// unchanged.
type RequestUpdateOptions struct {
	Title                 *string
	RawDescription        *string
	Constraints           *string
	DesiredOutcome        *string
	Urgency               *string
	BudgetCents           *int64
	Currency              *string
	SuggestedDurationMins *int
	IsPublic              *bool
	Skills                []string
}

func (e Engine) UpdateRequest(ctx context.Context, p access.Principal, id string, opts RequestUpdateOptions) (domain.Request, error) {
	rq, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return rq, classify(err)
	}
	if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: rq.CreatorID}); err != nil {
		return rq, classify(err)
	}
	switch rq.Status {
	case domain.RequestDraft, domain.RequestPublished:
	default:
		return rq, Errf(CodeInvalidStatus, "request %s is %s, no longer editable", id, rq.Status)
	}
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return rq, Errf(CodeValidation, "title is required")
		}
		rq.Title = strings.TrimSpace(*opts.Title)
	}
	if opts.RawDescription != nil {
		if strings.TrimSpace(*opts.RawDescription) == "" {
			return rq, Errf(CodeValidation, "description is required")
		}
		rq.RawDescription = *opts.RawDescription
	}
	if opts.Constraints != nil {
		rq.Constraints = optionalString(*opts.Constraints)
	}
	if opts.DesiredOutcome != nil {
		rq.DesiredOutcome = optionalString(*opts.DesiredOutcome)
	}
	if opts.Urgency != nil {
		if !validUrgencies[*opts.Urgency] {
			return rq, Errf(CodeValidation, "urgency %s not recognized", *opts.Urgency)
		}
		rq.Urgency = *opts.Urgency
	}
	if opts.BudgetCents != nil {
		if *opts.BudgetCents < 0 {
			return rq, Errf(CodeValidation, "budget must not be negative")
		}
		rq.BudgetCents = opts.BudgetCents
	}
	if opts.Currency != nil && *opts.Currency != "" {
		rq.Currency = *opts.Currency
	}
	if opts.SuggestedDurationMins != nil {
		if *opts.SuggestedDurationMins <= 0 {
			return rq, Errf(CodeValidation, "suggested duration must be positive")
		}
		rq.SuggestedDurationMins = opts.SuggestedDurationMins
	}
	if opts.IsPublic != nil {
		rq.IsPublic = *opts.IsPublic
	}
	rq.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rq, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateRequest(ctx, tx, rq); err != nil {
		return rq, classify(err)
	}
	if opts.Skills != nil {
		if err := e.Repo.ReplaceRequestSkills(ctx, tx, rq.ID, opts.Skills, e.newID); err != nil {
			return rq, err
		}
		rq.Skills = normalizeSkills(opts.Skills)
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "request.updated", "request", rq.ID, nil); err != nil {
		return rq, err
	}
	if err := tx.Commit(); err != nil {
		return rq, err
	}
	return rq, nil
}

// PublishRequest moves a draft into the open market.
func (e Engine) PublishRequest(ctx context.Context, p access.Principal, id string) (domain.Request, error) {
	rq, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return rq, classify(err)
	}
	if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: rq.CreatorID}); err != nil {
		return rq, classify(err)
	}
	if rq.Status != domain.RequestDraft {
		return rq, Errf(CodeInvalidStatus, "request %s is %s, cannot publish", id, rq.Status)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rq, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	if err := e.Repo.UpdateRequestStatus(ctx, tx, id, domain.RequestPublished, now); err != nil {
		return rq, classify(err)
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "request.published", "request", id, nil); err != nil {
		return rq, err
	}
	if err := tx.Commit(); err != nil {
		return rq, err
	}
	rq.Status = domain.RequestPublished
	rq.UpdatedAt = now
	return rq, nil
}

// RefineRequest asks the drafting service for a polished summary and stores
// it on the request. Only the raw description is sent, never messages.
func (e Engine) RefineRequest(ctx context.Context, p access.Principal, id string) (domain.Request, error) {
	rq, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return rq, classify(err)
	}
	if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: rq.CreatorID}); err != nil {
		return rq, classify(err)
	}
	switch rq.Status {
	case domain.RequestDraft, domain.RequestPublished, domain.RequestMatching:
	default:
		return rq, Errf(CodeInvalidStatus, "request %s is %s, cannot refine", id, rq.Status)
	}
	if e.Drafter == nil {
		return rq, Errf(CodeAIError, "drafting service not configured")
	}
	summary, err := e.Drafter.RefineRequest(ctx, requestContext(rq))
	if err != nil {
		return rq, Errf(CodeAIError, "refine request: %v", err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rq, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	if err := e.Repo.SetRefinedSummary(ctx, tx, id, summary, now); err != nil {
		return rq, err
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "request.refined", "request", id, nil); err != nil {
		return rq, err
	}
	if err := tx.Commit(); err != nil {
		return rq, err
	}
	rq.RefinedSummary = &summary
	rq.UpdatedAt = now
	return rq, nil
}

// CancelRequest closes a request before completion. Open offers are declined
// in the same transaction, and the reason, when given, lands in the audit
// entry.
func (e Engine) CancelRequest(ctx context.Context, p access.Principal, id, reason string) (domain.Request, error) {
	rq, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return rq, classify(err)
	}
	if p.ActorID != rq.CreatorID && !p.Admin {
		if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: rq.CreatorID}); err != nil {
			return rq, classify(err)
		}
	}
	switch rq.Status {
	case domain.RequestCompleted, domain.RequestCancelled:
		return rq, Errf(CodeInvalidStatus, "request %s is already %s", id, rq.Status)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rq, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	if err := e.Repo.UpdateRequestStatus(ctx, tx, id, domain.RequestCancelled, now); err != nil {
		return rq, classify(err)
	}
	if err := e.Repo.DeclineOpenOffers(ctx, tx, id, now); err != nil {
		return rq, err
	}
	meta := audit.Metadata{"previous_status": rq.Status}
	if reason = strings.TrimSpace(reason); reason != "" {
		meta["reason"] = reason
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "request.cancelled", "request", id, meta); err != nil {
		return rq, err
	}
	if err := tx.Commit(); err != nil {
		return rq, err
	}
	rq.Status = domain.RequestCancelled
	rq.UpdatedAt = now
	return rq, nil
}

// GetRequest returns a request. Private requests are visible to their owner,
// consultants with an offer on them, and admins.
func (e Engine) GetRequest(ctx context.Context, p access.Principal, id string) (domain.Request, error) {
	rq, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return rq, classify(err)
	}
	if rq.IsPublic || p.Admin || p.ActorID == rq.CreatorID {
		return rq, nil
	}
	if p.ActorID != "" {
		has, err := e.Repo.OfferExists(ctx, id, p.ActorID)
		if err != nil {
			return rq, err
		}
		if has {
			return rq, nil
		}
	}
	return domain.Request{}, Errf(CodeNotFound, "request %s not found", id)
}

// RequestListOptions filter the request listing.
type RequestListOptions struct {
	Mine   bool
	Status string
	Limit  int
	Cursor string // "<created_at>|<id>"
}

// ListRequests returns requests visible to the principal: the open market
// (public, published or matching) for consultants, or the caller's own
// requests with Mine.
func (e Engine) ListRequests(ctx context.Context, p access.Principal, opts RequestListOptions) ([]domain.Request, error) {
	if err := access.Check(p, access.AuthenticatedOnly, access.Entity{}); err != nil {
		return nil, classify(err)
	}
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	f := repo.RequestFilters{Status: opts.Status, Limit: limit}
	if cur := strings.SplitN(opts.Cursor, "|", 2); len(cur) == 2 {
		f.CursorCreatedAt, f.CursorID = cur[0], cur[1]
	}
	if opts.Mine {
		f.CreatorID = p.ActorID
		return e.Repo.ListRequests(ctx, f)
	}
	if !p.Admin {
		// Browsing the market requires a consultant profile.
		has, err := e.Repo.HasConsultantProfile(ctx, p.ActorID)
		if err != nil {
			return nil, err
		}
		if !has {
			return nil, Errf(CodeNoProfile, "a consultant profile is required to browse requests")
		}
		f.PublicOnly = true
	}
	return e.Repo.ListRequests(ctx, f)
}

// Match is one suggested consultant for a request.
type Match struct {
	Profile     domain.ConsultantProfile `json:"profile"`
	Overlap     int                      `json:"overlap"`
	Explanation string                   `json:"explanation,omitempty"`
}

// FindMatches suggests consultants for a published request, ranked by skill
// overlap, with optional drafted explanations. The request moves to MATCHING
// before the drafting call so a drafter failure never rolls back the
// transition.
func (e Engine) FindMatches(ctx context.Context, p access.Principal, id string, limit int) ([]Match, error) {
	rq, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if p.ActorID != rq.CreatorID && !p.Admin {
		if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: rq.CreatorID}); err != nil {
			return nil, classify(err)
		}
	}
	switch rq.Status {
	case domain.RequestPublished, domain.RequestMatching:
	default:
		return nil, Errf(CodeInvalidStatus, "request %s is %s, cannot match", id, rq.Status)
	}
	if limit <= 0 {
		limit = e.Config.Matching.DefaultLimit
	}
	if limit > e.Config.Matching.MaxLimit {
		limit = e.Config.Matching.MaxLimit
	}

	if rq.Status == domain.RequestPublished {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()
		now := e.nowRFC3339()
		if err := e.Repo.UpdateRequestStatus(ctx, tx, id, domain.RequestMatching, now); err != nil {
			return nil, classify(err)
		}
		if err := e.audit().Append(ctx, tx, p.ActorID, "request.matching", "request", id, nil); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
	}

	candidates, err := e.Repo.MatchProfiles(ctx, rq.Skills, rq.CreatorID, limit)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, Match{Profile: c.Profile, Overlap: c.Overlap})
	}
	if e.Drafter != nil && len(matches) > 0 {
		dc := make([]draft.Candidate, 0, len(matches))
		for _, m := range matches {
			dc = append(dc, draft.Candidate{
				ConsultantID:    m.Profile.ActorID,
				Headline:        m.Profile.Headline,
				Skills:          m.Profile.Skills,
				HourlyRateCents: m.Profile.HourlyRateCents,
			})
		}
		explanations, err := e.Drafter.ExplainMatches(ctx, requestContext(rq), dc)
		if err != nil {
			return matches, Errf(CodeAIError, "explain matches: %v", err)
		}
		for i := range matches {
			if i < len(explanations) {
				matches[i].Explanation = explanations[i]
			}
		}
	}
	return matches, nil
}

func requestContext(rq domain.Request) draft.RequestContext {
	rc := draft.RequestContext{
		Title:          rq.Title,
		RawDescription: rq.RawDescription,
		Urgency:        rq.Urgency,
		Skills:         rq.Skills,
	}
	if rq.Constraints != nil {
		rc.Constraints = *rq.Constraints
	}
	if rq.DesiredOutcome != nil {
		rc.DesiredOutcome = *rq.DesiredOutcome
	}
	return rc
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func normalizeSkills(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range in {
		slug := repo.SlugifySkill(s)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, slug)
	}
	return out
}
