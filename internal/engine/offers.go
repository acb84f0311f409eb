package engine

import (
	"context"
	"strings"

	"expertline/internal/audit"
	"expertline/internal/domain"
	"expertline/internal/engine/access"
	"expertline/internal/repo"
)

// OfferCreateOptions are parameters for a consultant's offer on a request.
// A nil rate falls back to the consultant's profile rate.
type OfferCreateOptions struct {
	RequestID         string
	Message           *string
	ProposedRateCents *int64
}

// CreateOffer lets a consultant bid on an open request. Preconditions are
// checked in order: profile, request existence, request status, self-offer,
// duplicate.
func (e Engine) CreateOffer(ctx context.Context, p access.Principal, opts OfferCreateOptions) (domain.Offer, error) {
	if err := access.Check(p, access.AuthenticatedOnly, access.Entity{}); err != nil {
		return domain.Offer{}, classify(err)
	}
	prof, err := e.Repo.GetConsultantProfile(ctx, p.ActorID)
	if err == repo.ErrNotFound {
		return domain.Offer{}, Errf(CodeNoProfile, "a consultant profile is required to make offers")
	}
	if err != nil {
		return domain.Offer{}, err
	}
	rq, err := e.Repo.GetRequest(ctx, opts.RequestID)
	if err != nil {
		return domain.Offer{}, classify(err)
	}
	switch rq.Status {
	case domain.RequestPublished, domain.RequestMatching:
	default:
		return domain.Offer{}, Errf(CodeInvalidStatus, "request %s is %s, not open for offers", rq.ID, rq.Status)
	}
	if rq.CreatorID == p.ActorID {
		return domain.Offer{}, Errf(CodeSelfOffer, "cannot offer on your own request")
	}
	exists, err := e.Repo.OfferExists(ctx, rq.ID, p.ActorID)
	if err != nil {
		return domain.Offer{}, err
	}
	if exists {
		return domain.Offer{}, Errf(CodeAlreadyExists, "you already have an offer on request %s", rq.ID)
	}
	rate := prof.HourlyRateCents
	if opts.ProposedRateCents != nil {
		if *opts.ProposedRateCents <= 0 {
			return domain.Offer{}, Errf(CodeValidation, "proposed rate must be positive")
		}
		rate = *opts.ProposedRateCents
	}
	now := e.nowRFC3339()
	o := domain.Offer{
		ID:                e.newID(),
		RequestID:         rq.ID,
		ConsultantID:      p.ActorID,
		Message:           opts.Message,
		ProposedRateCents: rate,
		Status:            domain.OfferPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertOffer(ctx, tx, o); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return o, Errf(CodeAlreadyExists, "you already have an offer on request %s", rq.ID)
		}
		return o, err
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "offer.created", "offer", o.ID, audit.Metadata{"request_id": rq.ID}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// AcceptOptions tune the booking created by an accept.
type AcceptOptions struct {
	ScheduledStart *string
	DurationMins   *int
}

// AcceptResult is everything the accept transaction created.
type AcceptResult struct {
	Offer      domain.Offer      `json:"offer"`
	Booking    domain.Booking    `json:"booking"`
	Payment    domain.Payment    `json:"payment"`
	Engagement domain.Engagement `json:"engagement"`
}

// AcceptOffer is the single-winner transition. In one transaction it accepts
// the offer, declines its pending siblings, books the request, and creates
// the booking, its pending payment and the engagement workspace. Either all
// of it commits or none.
func (e Engine) AcceptOffer(ctx context.Context, p access.Principal, offerID string, opts AcceptOptions) (AcceptResult, error) {
	var res AcceptResult
	o, err := e.Repo.GetOffer(ctx, offerID)
	if err != nil {
		return res, classify(err)
	}
	rq, err := e.Repo.GetRequest(ctx, o.RequestID)
	if err != nil {
		return res, classify(err)
	}
	if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: rq.CreatorID}); err != nil {
		return res, classify(err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	// Re-read inside the transaction: a concurrent accept must lose here,
	// not after commit.
	o, err = e.Repo.GetOfferTx(ctx, tx, offerID)
	if err != nil {
		return res, classify(err)
	}
	if o.Status != domain.OfferPending {
		return res, Errf(CodeInvalidStatus, "offer %s is %s, cannot accept", offerID, o.Status)
	}
	rq, err = e.Repo.GetRequestTx(ctx, tx, o.RequestID)
	if err != nil {
		return res, classify(err)
	}
	switch rq.Status {
	case domain.RequestPublished, domain.RequestMatching:
	default:
		return res, Errf(CodeInvalidStatus, "request %s is %s, cannot accept offers", rq.ID, rq.Status)
	}

	now := e.nowRFC3339()
	if err := e.Repo.UpdateOfferStatus(ctx, tx, o.ID, domain.OfferAccepted, now); err != nil {
		return res, classify(err)
	}
	declined, err := e.Repo.DeclineSiblingOffers(ctx, tx, rq.ID, o.ID, now)
	if err != nil {
		return res, err
	}
	if err := e.Repo.UpdateRequestStatus(ctx, tx, rq.ID, domain.RequestBooked, now); err != nil {
		return res, classify(err)
	}

	duration := e.Config.Booking.DefaultDurationMins
	if rq.SuggestedDurationMins != nil {
		duration = *rq.SuggestedDurationMins
	}
	if opts.DurationMins != nil {
		if *opts.DurationMins <= 0 {
			return res, Errf(CodeValidation, "duration must be positive")
		}
		duration = *opts.DurationMins
	}
	b := domain.Booking{
		ID:             e.newID(),
		RequestID:      &rq.ID,
		ClientID:       rq.CreatorID,
		ConsultantID:   o.ConsultantID,
		ScheduledStart: opts.ScheduledStart,
		DurationMins:   duration,
		Status:         domain.BookingConfirmed,
		CreatedAt:      now,
	}
	if err := e.Repo.InsertBooking(ctx, tx, b); err != nil {
		return res, err
	}
	pay := domain.Payment{
		ID:          e.newID(),
		BookingID:   b.ID,
		Status:      domain.PaymentPending,
		AmountCents: o.ProposedRateCents * int64(duration) / 60,
		Currency:    rq.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertPayment(ctx, tx, pay); err != nil {
		return res, err
	}
	eng := domain.Engagement{
		ID:        e.newID(),
		BookingID: b.ID,
		Status:    domain.EngagementActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertEngagement(ctx, tx, eng); err != nil {
		return res, err
	}

	if err := e.audit().Append(ctx, tx, p.ActorID, "offer.accepted", "offer", o.ID, audit.Metadata{
		"request_id":     rq.ID,
		"booking_id":     b.ID,
		"engagement_id":  eng.ID,
		"declined_count": len(declined),
	}); err != nil {
		return res, err
	}
	for _, id := range declined {
		if err := e.audit().Append(ctx, tx, p.ActorID, "offer.declined", "offer", id, audit.Metadata{"reason": "sibling_accepted"}); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	o.Status = domain.OfferAccepted
	o.UpdatedAt = now
	return AcceptResult{Offer: o, Booking: b, Payment: pay, Engagement: eng}, nil
}

// DeclineOffer lets the request owner turn down a pending offer, recording
// the reason, when given, in the audit entry.
func (e Engine) DeclineOffer(ctx context.Context, p access.Principal, offerID, reason string) (domain.Offer, error) {
	return e.closeOffer(ctx, p, offerID, domain.OfferDeclined, reason)
}

// WithdrawOffer lets the consultant retract their own pending offer.
func (e Engine) WithdrawOffer(ctx context.Context, p access.Principal, offerID string) (domain.Offer, error) {
	return e.closeOffer(ctx, p, offerID, domain.OfferWithdrawn, "")
}

func (e Engine) closeOffer(ctx context.Context, p access.Principal, offerID, target, reason string) (domain.Offer, error) {
	o, err := e.Repo.GetOffer(ctx, offerID)
	if err != nil {
		return o, classify(err)
	}
	switch target {
	case domain.OfferDeclined:
		rq, err := e.Repo.GetRequest(ctx, o.RequestID)
		if err != nil {
			return o, classify(err)
		}
		if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: rq.CreatorID}); err != nil {
			return o, classify(err)
		}
	case domain.OfferWithdrawn:
		if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: o.ConsultantID}); err != nil {
			return o, classify(err)
		}
	}
	if o.Status != domain.OfferPending {
		return o, Errf(CodeInvalidStatus, "offer %s is %s, cannot change", offerID, o.Status)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	// Re-check inside the transaction; the accept path may have raced us.
	cur, err := e.Repo.GetOfferTx(ctx, tx, offerID)
	if err != nil {
		return o, classify(err)
	}
	if cur.Status != domain.OfferPending {
		return o, Errf(CodeInvalidStatus, "offer %s is %s, cannot change", offerID, cur.Status)
	}
	if err := e.Repo.UpdateOfferStatus(ctx, tx, offerID, target, now); err != nil {
		return o, classify(err)
	}
	action := "offer.declined"
	if target == domain.OfferWithdrawn {
		action = "offer.withdrawn"
	}
	var meta audit.Metadata
	if reason = strings.TrimSpace(reason); reason != "" {
		meta = audit.Metadata{"reason": reason}
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, action, "offer", offerID, meta); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	o.Status = target
	o.UpdatedAt = now
	return o, nil
}

// ListOffersForRequest returns all offers on a request, owner or admin only.
func (e Engine) ListOffersForRequest(ctx context.Context, p access.Principal, requestID string) ([]domain.Offer, error) {
	rq, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, classify(err)
	}
	if p.ActorID != rq.CreatorID && !p.Admin {
		if err := access.Check(p, access.OwnerOnly, access.Entity{OwnerID: rq.CreatorID}); err != nil {
			return nil, classify(err)
		}
	}
	return e.Repo.ListOffersForRequest(ctx, requestID)
}

// ListOwnOffers returns the caller's offers as a consultant.
func (e Engine) ListOwnOffers(ctx context.Context, p access.Principal) ([]domain.Offer, error) {
	if err := access.Check(p, access.AuthenticatedOnly, access.Entity{}); err != nil {
		return nil, classify(err)
	}
	return e.Repo.ListOffersByConsultant(ctx, p.ActorID)
}
