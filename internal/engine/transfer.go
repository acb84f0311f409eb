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

// GetTransferPack returns the pack for an engagement, participants and
// admins.
func (e Engine) GetTransferPack(ctx context.Context, p access.Principal, engagementID string) (domain.TransferPack, error) {
	var pack domain.TransferPack
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return pack, classify(err)
	}
	_, entity, err := e.engagementParticipants(ctx, eng)
	if err != nil {
		return pack, err
	}
	if !p.Admin {
		if err := access.Check(p, access.ParticipantOnly, entity); err != nil {
			return pack, classify(err)
		}
	}
	pack, err = e.Repo.GetTransferPackByEngagement(ctx, engagementID)
	if err != nil {
		return pack, classify(err)
	}
	return pack, nil
}

// GenerateTransferPack drafts a pack from the workspace contents: request
// context, message history, shared notes and checklist. Regenerating
// overwrites the draft; a finalized pack never changes.
func (e Engine) GenerateTransferPack(ctx context.Context, p access.Principal, engagementID string) (domain.TransferPack, error) {
	var pack domain.TransferPack
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return pack, classify(err)
	}
	if err := e.requirePaidParticipant(ctx, p, eng); err != nil {
		return pack, err
	}
	existing, err := e.Repo.GetTransferPackByEngagement(ctx, engagementID)
	if err != nil && err != repo.ErrNotFound {
		return pack, err
	}
	if err == nil && existing.IsFinalized {
		return existing, Errf(CodeAlreadyFinalized, "transfer pack for engagement %s is finalized", engagementID)
	}
	if e.Drafter == nil {
		return pack, Errf(CodeAIError, "drafting service not configured")
	}

	pc, err := e.packContext(ctx, eng)
	if err != nil {
		return pack, err
	}
	drafted, err := e.Drafter.DraftPack(ctx, pc)
	if err != nil {
		return pack, Errf(CodeAIError, "draft transfer pack: %v", err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return pack, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	if existing.ID != "" {
		pack = existing
		pack.Summary = drafted.Summary
		pack.KeyDecisions = drafted.KeyDecisions
		pack.Runbook = drafted.Runbook
		pack.NextSteps = drafted.NextSteps
		pack.InternalizationChecklist = drafted.InternalizationChecklist
		pack.AIGenerated = true
		pack.UpdatedAt = now
		if err := e.Repo.UpdateTransferPack(ctx, tx, pack); err != nil {
			return pack, classify(err)
		}
	} else {
		pack = domain.TransferPack{
			ID:                       e.newID(),
			EngagementID:             engagementID,
			Summary:                  drafted.Summary,
			KeyDecisions:             drafted.KeyDecisions,
			Runbook:                  drafted.Runbook,
			NextSteps:                drafted.NextSteps,
			InternalizationChecklist: drafted.InternalizationChecklist,
			AIGenerated:              true,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		if err := e.Repo.InsertTransferPack(ctx, tx, pack); err != nil {
			return pack, err
		}
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "transfer_pack.generated", "transfer_pack", pack.ID, audit.Metadata{"engagement_id": engagementID}); err != nil {
		return pack, err
	}
	if err := tx.Commit(); err != nil {
		return pack, err
	}
	return pack, nil
}

func (e Engine) packContext(ctx context.Context, eng domain.Engagement) (draft.PackContext, error) {
	var pc draft.PackContext
	b, err := e.Repo.GetBooking(ctx, eng.BookingID)
	if err != nil {
		return pc, classify(err)
	}
	if b.RequestID != nil {
		rq, err := e.Repo.GetRequest(ctx, *b.RequestID)
		if err == nil {
			pc.Request = requestContext(rq)
		} else if err != repo.ErrNotFound {
			return pc, err
		}
	}
	messages, err := e.Repo.ListMessages(ctx, eng.ID)
	if err != nil {
		return pc, err
	}
	for _, m := range messages {
		pc.Messages = append(pc.Messages, draft.Exchange{Author: m.AuthorID, Body: m.Body})
	}
	notes, err := e.Repo.ListSharedNotes(ctx, eng.ID)
	if err != nil {
		return pc, err
	}
	for _, n := range notes {
		pc.Notes = append(pc.Notes, n.Content)
	}
	items, err := e.Repo.ListChecklistItems(ctx, eng.ID)
	if err != nil {
		return pc, err
	}
	for _, item := range items {
		pc.Checklist = append(pc.Checklist, draft.ChecklistLine{Text: item.Text, Done: item.IsCompleted})
	}
	return pc, nil
}

// PackUpdateOptions patch a draft pack. Nil fields are unchanged; empty
// strings clear. Any manual edit marks the pack human-edited.
type PackUpdateOptions struct {
	Summary                  *string
	KeyDecisions             *string
	Runbook                  *string
	NextSteps                *string
	InternalizationChecklist *string
}

// UpdateTransferPack edits a draft pack. A finalized pack rejects every
// update, even an empty one.
func (e Engine) UpdateTransferPack(ctx context.Context, p access.Principal, engagementID string, opts PackUpdateOptions) (domain.TransferPack, error) {
	var pack domain.TransferPack
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return pack, classify(err)
	}
	if err := e.requirePaidParticipant(ctx, p, eng); err != nil {
		return pack, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return pack, err
	}
	defer tx.Rollback()

	pack, err = e.Repo.GetTransferPackByEngagementTx(ctx, tx, engagementID)
	if err != nil {
		return pack, classify(err)
	}
	if pack.IsFinalized {
		return pack, Errf(CodeAlreadyFinalized, "transfer pack for engagement %s is finalized", engagementID)
	}
	if opts.Summary != nil {
		pack.Summary = *opts.Summary
	}
	if opts.KeyDecisions != nil {
		pack.KeyDecisions = *opts.KeyDecisions
	}
	if opts.Runbook != nil {
		pack.Runbook = *opts.Runbook
	}
	if opts.NextSteps != nil {
		pack.NextSteps = *opts.NextSteps
	}
	if opts.InternalizationChecklist != nil {
		pack.InternalizationChecklist = *opts.InternalizationChecklist
	}
	pack.AIGenerated = false
	pack.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateTransferPack(ctx, tx, pack); err != nil {
		return pack, classify(err)
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "transfer_pack.updated", "transfer_pack", pack.ID, audit.Metadata{"engagement_id": engagementID}); err != nil {
		return pack, err
	}
	if err := tx.Commit(); err != nil {
		return pack, err
	}
	return pack, nil
}

// FinalizeTransferPack locks the pack and marks the engagement transferred in
// the same transaction. Summary and key decisions must be filled in.
func (e Engine) FinalizeTransferPack(ctx context.Context, p access.Principal, engagementID string) (domain.TransferPack, error) {
	var pack domain.TransferPack
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return pack, classify(err)
	}
	if err := e.requirePaidParticipant(ctx, p, eng); err != nil {
		return pack, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return pack, err
	}
	defer tx.Rollback()

	pack, err = e.Repo.GetTransferPackByEngagementTx(ctx, tx, engagementID)
	if err != nil {
		return pack, classify(err)
	}
	if pack.IsFinalized {
		return pack, Errf(CodeAlreadyFinalized, "transfer pack for engagement %s is finalized", engagementID)
	}
	if strings.TrimSpace(pack.Summary) == "" || strings.TrimSpace(pack.KeyDecisions) == "" {
		return pack, Errf(CodeIncomplete, "summary and key decisions are required before finalizing")
	}

	now := e.nowRFC3339()
	pack.IsFinalized = true
	pack.FinalizedAt = &now
	pack.UpdatedAt = now
	if err := e.Repo.UpdateTransferPack(ctx, tx, pack); err != nil {
		return pack, classify(err)
	}
	eng.Status = domain.EngagementTransferred
	eng.UpdatedAt = now
	if err := e.Repo.UpdateEngagement(ctx, tx, eng); err != nil {
		return pack, classify(err)
	}
	if err := e.audit().Append(ctx, tx, p.ActorID, "transfer_pack.finalized", "transfer_pack", pack.ID, audit.Metadata{"engagement_id": engagementID}); err != nil {
		return pack, err
	}
	if err := tx.Commit(); err != nil {
		return pack, err
	}
	return pack, nil
}
