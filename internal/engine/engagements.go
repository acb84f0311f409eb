package engine

import (
	"context"
	"strings"

	"expertline/internal/audit"
	"expertline/internal/domain"
	"expertline/internal/engine/access"
	"expertline/internal/repo"
)

// EngagementView bundles an engagement with its booking and payment state.
type EngagementView struct {
	Engagement domain.Engagement `json:"engagement"`
	Booking    domain.Booking    `json:"booking"`
	Payment    domain.Payment    `json:"payment"`
}

// GetEngagement returns the engagement workspace, participants and admins
// only.
func (e Engine) GetEngagement(ctx context.Context, p access.Principal, id string) (EngagementView, error) {
	var view EngagementView
	eng, err := e.Repo.GetEngagement(ctx, id)
	if err != nil {
		return view, classify(err)
	}
	b, entity, err := e.engagementParticipants(ctx, eng)
	if err != nil {
		return view, err
	}
	if !p.Admin {
		if err := access.Check(p, access.ParticipantOnly, entity); err != nil {
			return view, classify(err)
		}
	}
	pay, err := e.Repo.GetPaymentByBooking(ctx, eng.BookingID)
	if err != nil {
		return view, classify(err)
	}
	return EngagementView{Engagement: eng, Booking: b, Payment: pay}, nil
}

// ListEngagements returns the caller's engagements on either side.
func (e Engine) ListEngagements(ctx context.Context, p access.Principal) ([]domain.Engagement, error) {
	if err := access.Check(p, access.AuthenticatedOnly, access.Entity{}); err != nil {
		return nil, classify(err)
	}
	return e.Repo.ListEngagementsForActor(ctx, p.ActorID)
}

// EngagementUpdateOptions patch the shared workspace header. Nil fields are
// unchanged; empty strings clear.
type EngagementUpdateOptions struct {
	Agenda    *string
	VideoLink *string
	Status    *string
}

// UpdateEngagement edits agenda, video link or pauses/resumes. Header edits
// are not payment-gated; only workspace content is.
func (e Engine) UpdateEngagement(ctx context.Context, p access.Principal, id string, opts EngagementUpdateOptions) (domain.Engagement, error) {
	eng, err := e.Repo.GetEngagement(ctx, id)
	if err != nil {
		return eng, classify(err)
	}
	_, entity, err := e.engagementParticipants(ctx, eng)
	if err != nil {
		return eng, err
	}
	if err := access.Check(p, access.ParticipantOnly, entity); err != nil {
		return eng, classify(err)
	}
	if opts.Status != nil {
		switch eng.Status {
		case domain.EngagementActive, domain.EngagementPaused:
		default:
			return eng, Errf(CodeInvalidStatus, "engagement %s is %s, cannot change status", id, eng.Status)
		}
		switch *opts.Status {
		case domain.EngagementActive, domain.EngagementPaused:
			eng.Status = *opts.Status
		default:
			return eng, Errf(CodeInvalidStatus, "engagement status can only be set to ACTIVE or PAUSED")
		}
	}
	if opts.Agenda != nil {
		eng.Agenda = optionalString(*opts.Agenda)
	}
	if opts.VideoLink != nil {
		eng.VideoLink = optionalString(*opts.VideoLink)
	}
	eng.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return eng, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateEngagement(ctx, tx, eng); err != nil {
		return eng, classify(err)
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "engagement.updated", "engagement", id, nil); err != nil {
		return eng, err
	}
	if err := tx.Commit(); err != nil {
		return eng, err
	}
	return eng, nil
}

// requireWorkspaceOpen guards workspace content mutations: participant
// access, an engagement still ACTIVE or PAUSED, and a succeeded payment.
// Once the handoff is finalized the workspace is read-only.
func (e Engine) requireWorkspaceOpen(ctx context.Context, p access.Principal, eng domain.Engagement) error {
	if err := e.requirePaidParticipant(ctx, p, eng); err != nil {
		return err
	}
	switch eng.Status {
	case domain.EngagementTransferred, domain.EngagementCompleted:
		return Errf(CodeInvalidStatus, "engagement %s is %s, workspace is closed", eng.ID, eng.Status)
	}
	return nil
}

// requirePaidParticipant is the access and payment gate shared with the
// transfer pack operations, which stay reachable after the handoff so a
// finalized pack answers for itself.
func (e Engine) requirePaidParticipant(ctx context.Context, p access.Principal, eng domain.Engagement) error {
	_, entity, err := e.engagementParticipants(ctx, eng)
	if err != nil {
		return err
	}
	if err := access.Check(p, access.ParticipantOnly, entity); err != nil {
		return classify(err)
	}
	pay, err := e.Repo.GetPaymentByBooking(ctx, eng.BookingID)
	if err != nil {
		return classify(err)
	}
	if pay.Status != domain.PaymentSucceeded {
		return Errf(CodePaymentRequired, "payment for booking %s is %s", eng.BookingID, pay.Status)
	}
	return nil
}

// SendMessage appends a chat message to the engagement.
func (e Engine) SendMessage(ctx context.Context, p access.Principal, engagementID, body string) (domain.Message, error) {
	var m domain.Message
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return m, classify(err)
	}
	if err := e.requireWorkspaceOpen(ctx, p, eng); err != nil {
		return m, err
	}
	if strings.TrimSpace(body) == "" {
		return m, Errf(CodeValidation, "message body is required")
	}
	m = domain.Message{
		ID:           e.newID(),
		EngagementID: engagementID,
		AuthorID:     p.ActorID,
		Body:         body,
		CreatedAt:    e.nowRFC3339(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "engagement.message", "engagement", engagementID, nil); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// ListMessages returns the full message history, participants and admins.
func (e Engine) ListMessages(ctx context.Context, p access.Principal, engagementID string) ([]domain.Message, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return nil, classify(err)
	}
	_, entity, err := e.engagementParticipants(ctx, eng)
	if err != nil {
		return nil, err
	}
	if !p.Admin {
		if err := access.Check(p, access.ParticipantOnly, entity); err != nil {
			return nil, classify(err)
		}
	}
	return e.Repo.ListMessages(ctx, engagementID)
}

// NoteCreateOptions are parameters for a workspace note.
type NoteCreateOptions struct {
	Title     *string
	Content   string
	IsPrivate bool
}

// CreateNote adds a note; private notes stay visible to their author only.
func (e Engine) CreateNote(ctx context.Context, p access.Principal, engagementID string, opts NoteCreateOptions) (domain.Note, error) {
	var n domain.Note
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return n, classify(err)
	}
	if err := e.requireWorkspaceOpen(ctx, p, eng); err != nil {
		return n, err
	}
	if strings.TrimSpace(opts.Content) == "" {
		return n, Errf(CodeValidation, "note content is required")
	}
	now := e.nowRFC3339()
	n = domain.Note{
		ID:           e.newID(),
		EngagementID: engagementID,
		AuthorID:     p.ActorID,
		Title:        opts.Title,
		Content:      opts.Content,
		IsPrivate:    opts.IsPrivate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertNote(ctx, tx, n); err != nil {
		return n, err
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "engagement.note", "engagement", engagementID, audit.Metadata{"private": opts.IsPrivate}); err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

// ListNotes returns shared notes plus the caller's own private ones.
func (e Engine) ListNotes(ctx context.Context, p access.Principal, engagementID string) ([]domain.Note, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return nil, classify(err)
	}
	_, entity, err := e.engagementParticipants(ctx, eng)
	if err != nil {
		return nil, err
	}
	if !p.Admin {
		if err := access.Check(p, access.ParticipantOnly, entity); err != nil {
			return nil, classify(err)
		}
	}
	return e.Repo.ListNotesVisibleTo(ctx, engagementID, p.ActorID)
}

// AddChecklistItem appends an internalization checklist item.
func (e Engine) AddChecklistItem(ctx context.Context, p access.Principal, engagementID, text string) (domain.ChecklistItem, error) {
	var item domain.ChecklistItem
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return item, classify(err)
	}
	if err := e.requireWorkspaceOpen(ctx, p, eng); err != nil {
		return item, err
	}
	if strings.TrimSpace(text) == "" {
		return item, Errf(CodeValidation, "checklist text is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return item, err
	}
	defer tx.Rollback()

	item, err = e.Repo.InsertChecklistItem(ctx, tx, domain.ChecklistItem{
		ID:           e.newID(),
		EngagementID: engagementID,
		Text:         text,
		CreatedAt:    e.nowRFC3339(),
	})
	if err != nil {
		return item, err
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "engagement.checklist.added", "engagement", engagementID, nil); err != nil {
		return item, err
	}
	if err := tx.Commit(); err != nil {
		return item, err
	}
	return item, nil
}

// ToggleChecklistItem flips an item's completion state. Toggling twice
// restores it.
func (e Engine) ToggleChecklistItem(ctx context.Context, p access.Principal, engagementID, itemID string) (domain.ChecklistItem, error) {
	var item domain.ChecklistItem
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return item, classify(err)
	}
	if err := e.requireWorkspaceOpen(ctx, p, eng); err != nil {
		return item, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return item, err
	}
	defer tx.Rollback()

	item, err = e.Repo.GetChecklistItemTx(ctx, tx, itemID)
	if err != nil {
		return item, classify(err)
	}
	if item.EngagementID != engagementID {
		return item, Errf(CodeNotFound, "checklist item %s not found", itemID)
	}
	item.IsCompleted = !item.IsCompleted
	if err := e.Repo.SetChecklistItemCompleted(ctx, tx, itemID, item.IsCompleted); err != nil {
		return item, classify(err)
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "engagement.checklist.toggled", "engagement", engagementID, audit.Metadata{"completed": item.IsCompleted}); err != nil {
		return item, err
	}
	if err := tx.Commit(); err != nil {
		return item, err
	}
	return item, nil
}

// ListChecklist returns the checklist in stable insertion order.
func (e Engine) ListChecklist(ctx context.Context, p access.Principal, engagementID string) ([]domain.ChecklistItem, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return nil, classify(err)
	}
	_, entity, err := e.engagementParticipants(ctx, eng)
	if err != nil {
		return nil, err
	}
	if !p.Admin {
		if err := access.Check(p, access.ParticipantOnly, entity); err != nil {
			return nil, classify(err)
		}
	}
	return e.Repo.ListChecklistItems(ctx, engagementID)
}

// CompleteEngagement closes the workspace. A finalized transfer pack is
// mandatory; booking and request are completed in the same transaction.
func (e Engine) CompleteEngagement(ctx context.Context, p access.Principal, id string) (domain.Engagement, error) {
	eng, err := e.Repo.GetEngagement(ctx, id)
	if err != nil {
		return eng, classify(err)
	}
	b, entity, err := e.engagementParticipants(ctx, eng)
	if err != nil {
		return eng, err
	}
	if err := access.Check(p, access.ParticipantOnly, entity); err != nil {
		return eng, classify(err)
	}
	switch eng.Status {
	case domain.EngagementCompleted:
		return eng, Errf(CodeInvalidStatus, "engagement %s is already completed", id)
	case domain.EngagementActive, domain.EngagementPaused, domain.EngagementTransferred:
	default:
		return eng, Errf(CodeInvalidStatus, "engagement %s is %s, cannot complete", id, eng.Status)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return eng, err
	}
	defer tx.Rollback()

	pack, err := e.Repo.GetTransferPackByEngagementTx(ctx, tx, id)
	if err == repo.ErrNotFound || (err == nil && !pack.IsFinalized) {
		return eng, Errf(CodeTransferRequired, "engagement %s has no finalized transfer pack", id)
	}
	if err != nil {
		return eng, err
	}

	now := e.nowRFC3339()
	eng.Status = domain.EngagementCompleted
	eng.UpdatedAt = now
	eng.EndedAt = &now
	if err := e.Repo.UpdateEngagement(ctx, tx, eng); err != nil {
		return eng, classify(err)
	}
	if err := e.Repo.UpdateBookingStatus(ctx, tx, b.ID, domain.BookingCompleted); err != nil {
		return eng, classify(err)
	}
	if b.RequestID != nil {
		if err := e.Repo.UpdateRequestStatus(ctx, tx, *b.RequestID, domain.RequestCompleted, now); err != nil {
			return eng, classify(err)
		}
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "engagement.completed", "engagement", id, audit.Metadata{"booking_id": b.ID}); err != nil {
		return eng, err
	}
	if err := tx.Commit(); err != nil {
		return eng, err
	}
	return eng, nil
}

// ApplyPaymentStatus records a payment processor callback. Replays of the
// same status are no-ops; a succeeded payment never regresses. The first
// success moves the booked request into progress.
func (e Engine) ApplyPaymentStatus(ctx context.Context, bookingID, status string, providerRef *string) (domain.Payment, error) {
	switch status {
	case domain.PaymentSucceeded, domain.PaymentFailed, domain.PaymentPending:
	default:
		return domain.Payment{}, Errf(CodeValidation, "payment status %s not recognized", status)
	}
	b, err := e.Repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Payment{}, classify(err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()

	pay, err := e.Repo.GetPaymentByBookingTx(ctx, tx, bookingID)
	if err != nil {
		return pay, classify(err)
	}
	if pay.Status == status {
		return pay, nil
	}
	if pay.Status == domain.PaymentSucceeded {
		return pay, Errf(CodeInvalidStatus, "payment for booking %s already succeeded", bookingID)
	}
	now := e.nowRFC3339()
	if err := e.Repo.UpdatePaymentStatus(ctx, tx, pay.ID, status, providerRef, now); err != nil {
		return pay, classify(err)
	}
	if status == domain.PaymentSucceeded && b.RequestID != nil {
		rq, err := e.Repo.GetRequestTx(ctx, tx, *b.RequestID)
		if err == nil && rq.Status == domain.RequestBooked {
			if err := e.Repo.UpdateRequestStatus(ctx, tx, rq.ID, domain.RequestInProgress, now); err != nil {
				return pay, classify(err)
			}
		} else if err != nil && err != repo.ErrNotFound {
			return pay, err
		}
	}
	if err := e.audit().Append(ctx, tx, "payment-processor", "payment."+strings.ToLower(status), "payment", pay.ID, audit.Metadata{"booking_id": bookingID}); err != nil {
		return pay, err
	}
	if err := tx.Commit(); err != nil {
		return pay, err
	}
	pay.Status = status
	pay.UpdatedAt = now
	if providerRef != nil {
		pay.ProviderRef = providerRef
	}
	return pay, nil
}
