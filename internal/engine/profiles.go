package engine

import (
	"context"
	"strings"

	"expertline/internal/domain"
	"expertline/internal/engine/access"
	"expertline/internal/repo"
)

// ProfileUpsertOptions create or replace the caller's consultant profile.
type ProfileUpsertOptions struct {
	Headline        string
	Bio             *string
	HourlyRateCents int64
	Currency        string
	Skills          []string
}

// UpsertConsultantProfile publishes the caller as a consultant. Calling it
// again replaces headline, rate and skills; skills are deduplicated by slug.
func (e Engine) UpsertConsultantProfile(ctx context.Context, p access.Principal, opts ProfileUpsertOptions) (domain.ConsultantProfile, error) {
	var profile domain.ConsultantProfile
	if err := access.Check(p, access.AuthenticatedOnly, access.Entity{}); err != nil {
		return profile, classify(err)
	}
	if strings.TrimSpace(opts.Headline) == "" {
		return profile, Errf(CodeValidation, "headline is required")
	}
	if opts.HourlyRateCents <= 0 {
		return profile, Errf(CodeValidation, "hourly rate must be positive")
	}
	currency := opts.Currency
	if currency == "" {
		currency = e.Config.Booking.DefaultCurrency
	}
	now := e.nowRFC3339()
	profile = domain.ConsultantProfile{
		ActorID:         p.ActorID,
		Headline:        strings.TrimSpace(opts.Headline),
		Bio:             opts.Bio,
		HourlyRateCents: opts.HourlyRateCents,
		Currency:        currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return profile, err
	}
	defer tx.Rollback()

	if err := e.EnsureActor(ctx, tx, p); err != nil {
		return profile, err
	}
	if existing, err := e.Repo.GetConsultantProfileTx(ctx, tx, p.ActorID); err == nil {
		profile.CreatedAt = existing.CreatedAt
	} else if err != repo.ErrNotFound {
		return profile, err
	}
	if err := e.Repo.UpsertConsultantProfile(ctx, tx, profile); err != nil {
		return profile, err
	}
	if err := e.Repo.ReplaceProfileSkills(ctx, tx, p.ActorID, opts.Skills, e.newID); err != nil {
		return profile, err
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "profile.upserted", "profile", p.ActorID, nil); err != nil {
		return profile, err
	}
	if err := tx.Commit(); err != nil {
		return profile, err
	}
	profile.Skills = normalizeSkills(opts.Skills)
	return profile, nil
}

// GetConsultantProfile returns a public consultant profile.
func (e Engine) GetConsultantProfile(ctx context.Context, actorID string) (domain.ConsultantProfile, error) {
	profile, err := e.Repo.GetConsultantProfile(ctx, actorID)
	if err != nil {
		return profile, classify(err)
	}
	return profile, nil
}

// ListAuditLog exposes the audit trail, admins only.
func (e Engine) ListAuditLog(ctx context.Context, p access.Principal, f repo.AuditFilters) ([]domain.AuditLogEntry, error) {
	if err := access.Check(p, access.AdminOnly, access.Entity{}); err != nil {
		return nil, classify(err)
	}
	return e.Repo.ListAuditLog(ctx, f)
}
