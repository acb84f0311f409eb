package engine_test

import (
	"testing"
	"time"

	"expertline/internal/domain"
	"expertline/internal/engine"
	"expertline/internal/engine/access"
)

// bookedEngagement runs create→publish→offer→accept and returns the accept
// result. The payment is still PENDING.
func bookedEngagement(t *testing.T, env testEnv) engine.AcceptResult {
	t.Helper()
	env.mustProfile(t, consultant, "go")
	rq := env.mustPublishedRequest(t, client, "go")
	offer := env.mustOffer(t, consultant, rq.ID)
	return env.mustAccept(t, client, offer.ID)
}

func TestWorkspaceLockedUntilPayment(t *testing.T) {
	env := newTestEnv(t)
	res := bookedEngagement(t, env)
	engID := res.Engagement.ID

	_, err := env.Engine.SendMessage(env.Ctx, client, engID, "hello")
	wantCode(t, err, engine.CodePaymentRequired)
	_, err = env.Engine.CreateNote(env.Ctx, client, engID, engine.NoteCreateOptions{Content: "n"})
	wantCode(t, err, engine.CodePaymentRequired)
	_, err = env.Engine.AddChecklistItem(env.Ctx, client, engID, "item")
	wantCode(t, err, engine.CodePaymentRequired)
	_, err = env.Engine.GenerateTransferPack(env.Ctx, client, engID)
	wantCode(t, err, engine.CodePaymentRequired)

	// reading and header edits stay allowed
	if _, err := env.Engine.GetEngagement(env.Ctx, client, engID); err != nil {
		t.Fatalf("get while locked: %v", err)
	}
	agenda := "kickoff"
	if _, err := env.Engine.UpdateEngagement(env.Ctx, client, engID, engine.EngagementUpdateOptions{Agenda: &agenda}); err != nil {
		t.Fatalf("header edit while locked: %v", err)
	}

	// a failed payment does not open the workspace
	if _, err := env.Engine.ApplyPaymentStatus(env.Ctx, res.Booking.ID, domain.PaymentFailed, nil); err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	_, err = env.Engine.SendMessage(env.Ctx, client, engID, "hello")
	wantCode(t, err, engine.CodePaymentRequired)

	env.mustPay(t, res.Booking.ID)
	if _, err := env.Engine.SendMessage(env.Ctx, client, engID, "hello"); err != nil {
		t.Fatalf("send after payment: %v", err)
	}
}

func TestPaymentCallbackIdempotent(t *testing.T) {
	env := newTestEnv(t)
	res := bookedEngagement(t, env)

	ref := "txn-1"
	pay, err := env.Engine.ApplyPaymentStatus(env.Ctx, res.Booking.ID, domain.PaymentSucceeded, &ref)
	if err != nil || pay.Status != domain.PaymentSucceeded {
		t.Fatalf("succeed: %v", err)
	}

	// replaying the same status is a no-op
	pay, err = env.Engine.ApplyPaymentStatus(env.Ctx, res.Booking.ID, domain.PaymentSucceeded, &ref)
	if err != nil || pay.Status != domain.PaymentSucceeded {
		t.Fatalf("replay: %v", err)
	}

	// a succeeded payment never regresses
	_, err = env.Engine.ApplyPaymentStatus(env.Ctx, res.Booking.ID, domain.PaymentFailed, nil)
	wantCode(t, err, engine.CodeInvalidStatus)

	_, err = env.Engine.ApplyPaymentStatus(env.Ctx, res.Booking.ID, "REFUNDED", nil)
	wantCode(t, err, engine.CodeValidation)

	_, err = env.Engine.ApplyPaymentStatus(env.Ctx, "missing", domain.PaymentSucceeded, nil)
	wantCode(t, err, engine.CodeNotFound)
}

func TestEngagementPauseResume(t *testing.T) {
	env := newTestEnv(t)
	res := bookedEngagement(t, env)
	engID := res.Engagement.ID

	paused := domain.EngagementPaused
	eng, err := env.Engine.UpdateEngagement(env.Ctx, consultant, engID, engine.EngagementUpdateOptions{Status: &paused})
	if err != nil || eng.Status != domain.EngagementPaused {
		t.Fatalf("pause: %s %v", eng.Status, err)
	}
	active := domain.EngagementActive
	eng, err = env.Engine.UpdateEngagement(env.Ctx, consultant, engID, engine.EngagementUpdateOptions{Status: &active})
	if err != nil || eng.Status != domain.EngagementActive {
		t.Fatalf("resume: %s %v", eng.Status, err)
	}

	// only ACTIVE and PAUSED are settable
	completed := domain.EngagementCompleted
	_, err = env.Engine.UpdateEngagement(env.Ctx, consultant, engID, engine.EngagementUpdateOptions{Status: &completed})
	wantCode(t, err, engine.CodeInvalidStatus)

	// outsiders cannot touch the workspace
	outsider := access.Principal{ActorID: "stranger"}
	_, err = env.Engine.UpdateEngagement(env.Ctx, outsider, engID, engine.EngagementUpdateOptions{Status: &paused})
	wantCode(t, err, engine.CodeForbidden)
	_, err = env.Engine.GetEngagement(env.Ctx, outsider, engID)
	wantCode(t, err, engine.CodeForbidden)
}

func TestNoteVisibility(t *testing.T) {
	env := newTestEnv(t)
	res := bookedEngagement(t, env)
	env.mustPay(t, res.Booking.ID)
	engID := res.Engagement.ID

	if _, err := env.Engine.CreateNote(env.Ctx, client, engID, engine.NoteCreateOptions{Content: "shared by client"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateNote(env.Ctx, consultant, engID, engine.NoteCreateOptions{Content: "private scratch", IsPrivate: true}); err != nil {
		t.Fatal(err)
	}

	clientNotes, err := env.Engine.ListNotes(env.Ctx, client, engID)
	if err != nil || len(clientNotes) != 1 {
		t.Fatalf("client sees %d notes: %v", len(clientNotes), err)
	}
	consultantNotes, err := env.Engine.ListNotes(env.Ctx, consultant, engID)
	if err != nil || len(consultantNotes) != 2 {
		t.Fatalf("consultant sees %d notes: %v", len(consultantNotes), err)
	}
}

func TestChecklistOrderAndToggle(t *testing.T) {
	env := newTestEnv(t)
	res := bookedEngagement(t, env)
	env.mustPay(t, res.Booking.ID)
	engID := res.Engagement.ID

	first, err := env.Engine.AddChecklistItem(env.Ctx, consultant, engID, "read the runbook")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.AddChecklistItem(env.Ctx, consultant, engID, "rotate credentials")
	if err != nil {
		t.Fatal(err)
	}
	if first.Order != 0 || second.Order != 1 {
		t.Fatalf("orders = %d, %d", first.Order, second.Order)
	}

	items, err := env.Engine.ListChecklist(env.Ctx, client, engID)
	if err != nil || len(items) != 2 {
		t.Fatalf("list: %d %v", len(items), err)
	}
	if items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("unexpected order")
	}

	item, err := env.Engine.ToggleChecklistItem(env.Ctx, client, engID, first.ID)
	if err != nil || !item.IsCompleted {
		t.Fatalf("toggle: %v", err)
	}
	// toggling twice restores the original state
	item, err = env.Engine.ToggleChecklistItem(env.Ctx, client, engID, first.ID)
	if err != nil || item.IsCompleted {
		t.Fatalf("second toggle: %v", err)
	}

	// toggling through the wrong engagement fails
	_, err = env.Engine.ToggleChecklistItem(env.Ctx, client, engID, "missing")
	wantCode(t, err, engine.CodeNotFound)
}

func TestMessagesOrderedChronologically(t *testing.T) {
	env := newTestEnv(t)
	res := bookedEngagement(t, env)
	env.mustPay(t, res.Booking.ID)
	engID := res.Engagement.ID

	// advance the clock per call so ordering is by timestamp, not id
	base := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	tick := 0
	env.Engine.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	if _, err := env.Engine.SendMessage(env.Ctx, client, engID, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, consultant, engID, "second"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.SendMessage(env.Ctx, client, engID, "   ")
	wantCode(t, err, engine.CodeValidation)

	msgs, err := env.Engine.ListMessages(env.Ctx, consultant, engID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("messages: %d %v", len(msgs), err)
	}
	if msgs[0].Body != "first" || msgs[1].Body != "second" {
		t.Fatalf("order wrong: %s, %s", msgs[0].Body, msgs[1].Body)
	}

	list, err := env.Engine.ListEngagements(env.Ctx, consultant)
	if err != nil || len(list) != 1 {
		t.Fatalf("engagements: %d %v", len(list), err)
	}
}
