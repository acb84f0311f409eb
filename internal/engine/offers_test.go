package engine_test

import (
	"strings"
	"testing"

	"expertline/internal/domain"
	"expertline/internal/engine"
	"expertline/internal/engine/access"
	"expertline/internal/repo"
)

func TestCreateOfferPreconditions(t *testing.T) {
	env := newTestEnv(t)
	rq := env.mustPublishedRequest(t, client, "go")

	// no consultant profile yet
	_, err := env.Engine.CreateOffer(env.Ctx, consultant, engine.OfferCreateOptions{RequestID: rq.ID, ProposedRateCents: cents(100)})
	wantCode(t, err, engine.CodeNoProfile)

	env.mustProfile(t, consultant, "go")

	// unknown request
	_, err = env.Engine.CreateOffer(env.Ctx, consultant, engine.OfferCreateOptions{RequestID: "missing", ProposedRateCents: cents(100)})
	wantCode(t, err, engine.CodeNotFound)

	// drafts are not open for offers
	draftRq, err := env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{Title: "d", RawDescription: "d"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CreateOffer(env.Ctx, consultant, engine.OfferCreateOptions{RequestID: draftRq.ID, ProposedRateCents: cents(100)})
	wantCode(t, err, engine.CodeInvalidStatus)

	// owners cannot bid on their own requests
	env.mustProfile(t, client, "go")
	_, err = env.Engine.CreateOffer(env.Ctx, client, engine.OfferCreateOptions{RequestID: rq.ID, ProposedRateCents: cents(100)})
	wantCode(t, err, engine.CodeSelfOffer)

	// an explicit rate must be positive
	_, err = env.Engine.CreateOffer(env.Ctx, consultant, engine.OfferCreateOptions{RequestID: rq.ID, ProposedRateCents: cents(0)})
	wantCode(t, err, engine.CodeValidation)

	if _, err := env.Engine.CreateOffer(env.Ctx, consultant, engine.OfferCreateOptions{RequestID: rq.ID, ProposedRateCents: cents(100)}); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	// one offer per consultant per request
	_, err = env.Engine.CreateOffer(env.Ctx, consultant, engine.OfferCreateOptions{RequestID: rq.ID, ProposedRateCents: cents(200)})
	wantCode(t, err, engine.CodeAlreadyExists)
}

func TestCreateOfferDefaultsToProfileRate(t *testing.T) {
	env := newTestEnv(t)
	env.mustProfile(t, consultant, "go")
	rq := env.mustPublishedRequest(t, client, "go")

	o, err := env.Engine.CreateOffer(env.Ctx, consultant, engine.OfferCreateOptions{RequestID: rq.ID})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if o.ProposedRateCents != 15000 {
		t.Fatalf("rate = %d, want the profile rate", o.ProposedRateCents)
	}
}

func TestAcceptOfferDeclinesSiblings(t *testing.T) {
	env := newTestEnv(t)
	other := access.Principal{ActorID: "consultant-2"}
	env.mustProfile(t, consultant, "go")
	env.mustProfile(t, other, "go")
	rq := env.mustPublishedRequest(t, client, "go")

	winner := env.mustOffer(t, consultant, rq.ID)
	loser := env.mustOffer(t, other, rq.ID)

	// only the request owner accepts
	_, err := env.Engine.AcceptOffer(env.Ctx, consultant, winner.ID, engine.AcceptOptions{})
	wantCode(t, err, engine.CodeForbidden)

	res := env.mustAccept(t, client, winner.ID)
	if res.Offer.ID != winner.ID {
		t.Fatalf("wrong winner")
	}

	offers, err := env.Engine.ListOffersForRequest(env.Ctx, client, rq.ID)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]string{}
	for _, o := range offers {
		byID[o.ID] = o.Status
	}
	if byID[winner.ID] != domain.OfferAccepted || byID[loser.ID] != domain.OfferDeclined {
		t.Fatalf("statuses = %v", byID)
	}

	// accepting the loser afterwards fails and changes nothing
	_, err = env.Engine.AcceptOffer(env.Ctx, client, loser.ID, engine.AcceptOptions{})
	wantCode(t, err, engine.CodeInvalidStatus)

	// a late offer on the booked request fails
	late := access.Principal{ActorID: "consultant-3"}
	env.mustProfile(t, late, "go")
	_, err = env.Engine.CreateOffer(env.Ctx, late, engine.OfferCreateOptions{RequestID: rq.ID, ProposedRateCents: cents(100)})
	wantCode(t, err, engine.CodeInvalidStatus)
}

func TestAcceptUsesSuggestedDuration(t *testing.T) {
	env := newTestEnv(t)
	env.mustProfile(t, consultant, "go")
	mins := 90
	rq, err := env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{
		Title:                 "Review",
		RawDescription:        "Long session.",
		SuggestedDurationMins: &mins,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.PublishRequest(env.Ctx, client, rq.ID); err != nil {
		t.Fatal(err)
	}
	offer := env.mustOffer(t, consultant, rq.ID)
	res := env.mustAccept(t, client, offer.ID)
	if res.Booking.DurationMins != 90 {
		t.Fatalf("duration = %d", res.Booking.DurationMins)
	}
	// 20000 cents/hour * 90 minutes
	if res.Payment.AmountCents != 30000 {
		t.Fatalf("amount = %d", res.Payment.AmountCents)
	}
}

func TestDeclineAndWithdraw(t *testing.T) {
	env := newTestEnv(t)
	other := access.Principal{ActorID: "consultant-2"}
	env.mustProfile(t, consultant, "go")
	env.mustProfile(t, other, "go")
	rq := env.mustPublishedRequest(t, client, "go")
	o1 := env.mustOffer(t, consultant, rq.ID)
	o2 := env.mustOffer(t, other, rq.ID)

	// consultants cannot decline, clients cannot withdraw
	_, err := env.Engine.DeclineOffer(env.Ctx, consultant, o1.ID, "")
	wantCode(t, err, engine.CodeForbidden)
	_, err = env.Engine.WithdrawOffer(env.Ctx, client, o1.ID)
	wantCode(t, err, engine.CodeForbidden)

	o1, err = env.Engine.DeclineOffer(env.Ctx, client, o1.ID, "rate over budget")
	if err != nil || o1.Status != domain.OfferDeclined {
		t.Fatalf("decline: %s %v", o1.Status, err)
	}

	// the decline reason lands in the audit entry
	entries, err := env.Engine.ListAuditLog(env.Ctx, admin, repo.AuditFilters{Action: "offer.declined"})
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit entries: %d %v", len(entries), err)
	}
	if !strings.Contains(entries[0].Metadata, "rate over budget") {
		t.Fatalf("metadata = %s", entries[0].Metadata)
	}
	o2, err = env.Engine.WithdrawOffer(env.Ctx, other, o2.ID)
	if err != nil || o2.Status != domain.OfferWithdrawn {
		t.Fatalf("withdraw: %s %v", o2.Status, err)
	}

	// closed offers stay closed
	_, err = env.Engine.DeclineOffer(env.Ctx, client, o1.ID, "")
	wantCode(t, err, engine.CodeInvalidStatus)
	_, err = env.Engine.WithdrawOffer(env.Ctx, other, o2.ID)
	wantCode(t, err, engine.CodeInvalidStatus)
}

func TestOfferListingAccess(t *testing.T) {
	env := newTestEnv(t)
	env.mustProfile(t, consultant, "go")
	rq := env.mustPublishedRequest(t, client, "go")
	env.mustOffer(t, consultant, rq.ID)

	// the consultant is not the request owner
	_, err := env.Engine.ListOffersForRequest(env.Ctx, consultant, rq.ID)
	wantCode(t, err, engine.CodeForbidden)

	if _, err := env.Engine.ListOffersForRequest(env.Ctx, client, rq.ID); err != nil {
		t.Fatalf("owner list: %v", err)
	}
	if _, err := env.Engine.ListOffersForRequest(env.Ctx, admin, rq.ID); err != nil {
		t.Fatalf("admin list: %v", err)
	}
}
