package engine_test

import (
	"testing"

	"expertline/internal/engine"
	"expertline/internal/engine/access"
)

// paidEngagement returns an engagement with a succeeded payment.
func paidEngagement(t *testing.T, env testEnv) engine.AcceptResult {
	t.Helper()
	res := bookedEngagement(t, env)
	env.mustPay(t, res.Booking.ID)
	return res
}

func TestGenerateTransferPackFromWorkspace(t *testing.T) {
	env := newTestEnv(t)
	res := paidEngagement(t, env)
	engID := res.Engagement.ID

	// nothing to get yet
	_, err := env.Engine.GetTransferPack(env.Ctx, client, engID)
	wantCode(t, err, engine.CodeNotFound)

	pack, err := env.Engine.GenerateTransferPack(env.Ctx, consultant, engID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !pack.AIGenerated || pack.Summary == "" || pack.KeyDecisions == "" {
		t.Fatalf("pack = %+v", pack)
	}

	// regenerating overwrites the draft in place
	again, err := env.Engine.GenerateTransferPack(env.Ctx, consultant, engID)
	if err != nil || again.ID != pack.ID {
		t.Fatalf("regenerate: %v", err)
	}

	// a drafter failure leaves the stored draft alone
	env.Engine.Drafter = fakeDrafter{fail: true}
	_, err = env.Engine.GenerateTransferPack(env.Ctx, consultant, engID)
	wantCode(t, err, engine.CodeAIError)
	got, err := env.Engine.GetTransferPack(env.Ctx, client, engID)
	if err != nil || got.Summary != pack.Summary {
		t.Fatalf("draft changed after failed generate: %v", err)
	}

	// outsiders see nothing
	_, err = env.Engine.GetTransferPack(env.Ctx, access.Principal{ActorID: "stranger"}, engID)
	wantCode(t, err, engine.CodeForbidden)
}

func TestUpdateTransferPackMarksHumanEdited(t *testing.T) {
	env := newTestEnv(t)
	res := paidEngagement(t, env)
	engID := res.Engagement.ID

	// no pack yet
	summary := "What we did."
	_, err := env.Engine.UpdateTransferPack(env.Ctx, consultant, engID, engine.PackUpdateOptions{Summary: &summary})
	wantCode(t, err, engine.CodeNotFound)

	if _, err := env.Engine.GenerateTransferPack(env.Ctx, consultant, engID); err != nil {
		t.Fatal(err)
	}
	pack, err := env.Engine.UpdateTransferPack(env.Ctx, consultant, engID, engine.PackUpdateOptions{Summary: &summary})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if pack.Summary != summary || pack.AIGenerated {
		t.Fatalf("pack = %+v", pack)
	}
}

func TestFinalizeTransferPack(t *testing.T) {
	env := newTestEnv(t)
	res := paidEngagement(t, env)
	engID := res.Engagement.ID

	if _, err := env.Engine.GenerateTransferPack(env.Ctx, consultant, engID); err != nil {
		t.Fatal(err)
	}

	// an empty summary blocks finalizing
	empty := ""
	if _, err := env.Engine.UpdateTransferPack(env.Ctx, consultant, engID, engine.PackUpdateOptions{Summary: &empty}); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.FinalizeTransferPack(env.Ctx, consultant, engID)
	wantCode(t, err, engine.CodeIncomplete)

	summary := "Final summary."
	if _, err := env.Engine.UpdateTransferPack(env.Ctx, consultant, engID, engine.PackUpdateOptions{Summary: &summary}); err != nil {
		t.Fatal(err)
	}
	pack, err := env.Engine.FinalizeTransferPack(env.Ctx, consultant, engID)
	if err != nil || !pack.IsFinalized || pack.FinalizedAt == nil {
		t.Fatalf("finalize: %+v %v", pack, err)
	}

	// everything about a finalized pack is frozen
	_, err = env.Engine.FinalizeTransferPack(env.Ctx, consultant, engID)
	wantCode(t, err, engine.CodeAlreadyFinalized)
	_, err = env.Engine.UpdateTransferPack(env.Ctx, consultant, engID, engine.PackUpdateOptions{})
	wantCode(t, err, engine.CodeAlreadyFinalized)
	_, err = env.Engine.GenerateTransferPack(env.Ctx, consultant, engID)
	wantCode(t, err, engine.CodeAlreadyFinalized)
}

func TestWorkspaceClosesAfterHandoff(t *testing.T) {
	env := newTestEnv(t)
	res := paidEngagement(t, env)
	engID := res.Engagement.ID

	if _, err := env.Engine.SendMessage(env.Ctx, client, engID, "before handoff"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GenerateTransferPack(env.Ctx, consultant, engID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.FinalizeTransferPack(env.Ctx, consultant, engID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// workspace content is read-only once the engagement is TRANSFERRED
	_, err := env.Engine.SendMessage(env.Ctx, client, engID, "too late")
	wantCode(t, err, engine.CodeInvalidStatus)
	_, err = env.Engine.CreateNote(env.Ctx, client, engID, engine.NoteCreateOptions{Content: "n"})
	wantCode(t, err, engine.CodeInvalidStatus)
	_, err = env.Engine.AddChecklistItem(env.Ctx, client, engID, "item")
	wantCode(t, err, engine.CodeInvalidStatus)

	// pack operations still answer with the finalization state
	_, err = env.Engine.UpdateTransferPack(env.Ctx, consultant, engID, engine.PackUpdateOptions{})
	wantCode(t, err, engine.CodeAlreadyFinalized)

	// reading stays open for participants
	msgs, err := env.Engine.ListMessages(env.Ctx, client, engID)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("messages after handoff: %d %v", len(msgs), err)
	}
}
