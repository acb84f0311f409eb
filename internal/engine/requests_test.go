package engine_test

import (
	"strings"
	"testing"

	"expertline/internal/domain"
	"expertline/internal/engine"
	"expertline/internal/engine/access"
	"expertline/internal/repo"
)

func TestCreateRequestValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateRequest(env.Ctx, access.Principal{}, engine.RequestCreateOptions{Title: "x", RawDescription: "y"})
	wantCode(t, err, engine.CodeUnauthorized)

	_, err = env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{RawDescription: "y"})
	wantCode(t, err, engine.CodeValidation)

	_, err = env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{Title: "x", RawDescription: "y", Urgency: "SOMEDAY"})
	wantCode(t, err, engine.CodeValidation)

	rq, err := env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{
		Title:          "Kafka tuning",
		RawDescription: "Consumers lag under load.",
		Skills:         []string{"Kafka", "kafka", "Stream Processing"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rq.Status != domain.RequestDraft {
		t.Fatalf("status = %s", rq.Status)
	}
	if rq.Urgency != domain.UrgencyNormal {
		t.Fatalf("urgency default = %s", rq.Urgency)
	}
	// skills deduplicate by slug
	if len(rq.Skills) != 2 || rq.Skills[0] != "kafka" || rq.Skills[1] != "stream-processing" {
		t.Fatalf("skills = %v", rq.Skills)
	}
}

func TestUpdateRequestWhileDraftOrPublished(t *testing.T) {
	env := newTestEnv(t)
	rq, err := env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{Title: "a", RawDescription: "b"})
	if err != nil {
		t.Fatal(err)
	}

	title := "better title"
	rq, err = env.Engine.UpdateRequest(env.Ctx, client, rq.ID, engine.RequestUpdateOptions{Title: &title})
	if err != nil || rq.Title != "better title" {
		t.Fatalf("update draft: %v", err)
	}

	// non-owners cannot edit
	_, err = env.Engine.UpdateRequest(env.Ctx, consultant, rq.ID, engine.RequestUpdateOptions{Title: &title})
	wantCode(t, err, engine.CodeForbidden)

	if _, err := env.Engine.PublishRequest(env.Ctx, client, rq.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// published requests stay editable
	title = "sharper title"
	rq, err = env.Engine.UpdateRequest(env.Ctx, client, rq.ID, engine.RequestUpdateOptions{Title: &title})
	if err != nil || rq.Title != "sharper title" {
		t.Fatalf("update published: %v", err)
	}

	// publishing twice fails
	_, err = env.Engine.PublishRequest(env.Ctx, client, rq.ID)
	wantCode(t, err, engine.CodeInvalidStatus)

	// editing stops once the request is closed
	if _, err := env.Engine.CancelRequest(env.Ctx, client, rq.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = env.Engine.UpdateRequest(env.Ctx, client, rq.ID, engine.RequestUpdateOptions{Title: &title})
	wantCode(t, err, engine.CodeInvalidStatus)
}

func TestRefineRequestStoresSummary(t *testing.T) {
	env := newTestEnv(t)
	rq, err := env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{Title: "Terraform drift", RawDescription: "State keeps drifting."})
	if err != nil {
		t.Fatal(err)
	}
	rq, err = env.Engine.RefineRequest(env.Ctx, client, rq.ID)
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if rq.RefinedSummary == nil || *rq.RefinedSummary != "Refined: Terraform drift" {
		t.Fatalf("summary = %v", rq.RefinedSummary)
	}

	// drafter failures surface as AI_ERROR and leave the request untouched
	env.Engine.Drafter = fakeDrafter{fail: true}
	_, err = env.Engine.RefineRequest(env.Ctx, client, rq.ID)
	wantCode(t, err, engine.CodeAIError)
	got, _ := env.Engine.GetRequest(env.Ctx, client, rq.ID)
	if got.RefinedSummary == nil || *got.RefinedSummary != "Refined: Terraform drift" {
		t.Fatalf("summary changed after failed refine")
	}
}

func TestMarketBrowsingRequiresProfile(t *testing.T) {
	env := newTestEnv(t)
	env.mustPublishedRequest(t, client, "go")

	_, err := env.Engine.ListRequests(env.Ctx, consultant, engine.RequestListOptions{})
	wantCode(t, err, engine.CodeNoProfile)

	env.mustProfile(t, consultant, "go")
	items, err := env.Engine.ListRequests(env.Ctx, consultant, engine.RequestListOptions{})
	if err != nil || len(items) != 1 {
		t.Fatalf("market list: %d %v", len(items), err)
	}

	// owners see their drafts with Mine without a profile
	if _, err := env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{Title: "draft", RawDescription: "d"}); err != nil {
		t.Fatal(err)
	}
	mine, err := env.Engine.ListRequests(env.Ctx, client, engine.RequestListOptions{Mine: true})
	if err != nil || len(mine) != 2 {
		t.Fatalf("mine list: %d %v", len(mine), err)
	}

	// admins browse without a profile
	all, err := env.Engine.ListRequests(env.Ctx, admin, engine.RequestListOptions{})
	if err != nil || len(all) == 0 {
		t.Fatalf("admin list: %v", err)
	}
}

func TestPrivateRequestVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.mustProfile(t, consultant, "go")
	private := false
	rq, err := env.Engine.CreateRequest(env.Ctx, client, engine.RequestCreateOptions{
		Title:          "Sensitive audit",
		RawDescription: "Internal only.",
		IsPublic:       &private,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.GetRequest(env.Ctx, client, rq.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := env.Engine.GetRequest(env.Ctx, admin, rq.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	_, err = env.Engine.GetRequest(env.Ctx, consultant, rq.ID)
	wantCode(t, err, engine.CodeNotFound)
}

func TestFindMatchesRanksByOverlap(t *testing.T) {
	env := newTestEnv(t)
	strong := access.Principal{ActorID: "strong"}
	weak := access.Principal{ActorID: "weak"}
	env.mustProfile(t, strong, "postgres", "migrations")
	env.mustProfile(t, weak, "postgres")

	rq := env.mustPublishedRequest(t, client, "postgres", "migrations")
	matches, err := env.Engine.FindMatches(env.Ctx, client, rq.ID, 5)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d", len(matches))
	}
	if matches[0].Profile.ActorID != "strong" || matches[0].Overlap != 2 {
		t.Fatalf("ranking wrong: %+v", matches[0])
	}
	if matches[0].Explanation == "" {
		t.Fatalf("missing explanation")
	}

	// the request moved to MATCHING
	got, _ := env.Engine.GetRequest(env.Ctx, client, rq.ID)
	if got.Status != domain.RequestMatching {
		t.Fatalf("status after match = %s", got.Status)
	}

	// admins can run matching on any request; strangers cannot
	if _, err := env.Engine.FindMatches(env.Ctx, admin, rq.ID, 5); err != nil {
		t.Fatalf("admin match: %v", err)
	}
	_, err = env.Engine.FindMatches(env.Ctx, strong, rq.ID, 5)
	wantCode(t, err, engine.CodeForbidden)

	// MATCHING stays even when the drafter fails afterwards
	env.Engine.Drafter = fakeDrafter{fail: true}
	_, err = env.Engine.FindMatches(env.Ctx, client, rq.ID, 5)
	wantCode(t, err, engine.CodeAIError)
	got, _ = env.Engine.GetRequest(env.Ctx, client, rq.ID)
	if got.Status != domain.RequestMatching {
		t.Fatalf("status after failed explain = %s", got.Status)
	}
}

func TestCancelRequestDeclinesOpenOffers(t *testing.T) {
	env := newTestEnv(t)
	env.mustProfile(t, consultant, "go")
	rq := env.mustPublishedRequest(t, client, "go")
	offer := env.mustOffer(t, consultant, rq.ID)

	rq, err := env.Engine.CancelRequest(env.Ctx, client, rq.ID, "found in-house expertise")
	if err != nil || rq.Status != domain.RequestCancelled {
		t.Fatalf("cancel: %s %v", rq.Status, err)
	}

	// the reason lands in the audit entry
	entries, err := env.Engine.ListAuditLog(env.Ctx, admin, repo.AuditFilters{Action: "request.cancelled"})
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit entries: %d %v", len(entries), err)
	}
	if !strings.Contains(entries[0].Metadata, "found in-house expertise") {
		t.Fatalf("metadata = %s", entries[0].Metadata)
	}

	offers, err := env.Engine.ListOwnOffers(env.Ctx, consultant)
	if err != nil || len(offers) != 1 {
		t.Fatalf("own offers: %v", err)
	}
	if offers[0].ID != offer.ID || offers[0].Status != domain.OfferDeclined {
		t.Fatalf("offer after cancel = %s", offers[0].Status)
	}

	// cancelling twice fails
	_, err = env.Engine.CancelRequest(env.Ctx, client, rq.ID, "")
	wantCode(t, err, engine.CodeInvalidStatus)
}
