package engine_test

import (
	"testing"
	"time"

	"expertline/internal/engine"
	"expertline/internal/engine/access"
)

func TestUpsertConsultantProfile(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.UpsertConsultantProfile(env.Ctx, access.Principal{}, engine.ProfileUpsertOptions{Headline: "x", HourlyRateCents: 100})
	wantCode(t, err, engine.CodeUnauthorized)

	_, err = env.Engine.UpsertConsultantProfile(env.Ctx, consultant, engine.ProfileUpsertOptions{HourlyRateCents: 100})
	wantCode(t, err, engine.CodeValidation)

	_, err = env.Engine.UpsertConsultantProfile(env.Ctx, consultant, engine.ProfileUpsertOptions{Headline: "x"})
	wantCode(t, err, engine.CodeValidation)

	profile, err := env.Engine.UpsertConsultantProfile(env.Ctx, consultant, engine.ProfileUpsertOptions{
		Headline:        "Database tuner",
		HourlyRateCents: 12000,
		Skills:          []string{"Postgres", "Query Planning"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if profile.Currency != "USD" {
		t.Fatalf("default currency = %s", profile.Currency)
	}
	if len(profile.Skills) != 2 {
		t.Fatalf("skills = %v", profile.Skills)
	}

	// re-upserting replaces content but keeps the original creation time
	env.Engine.Now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	again, err := env.Engine.UpsertConsultantProfile(env.Ctx, consultant, engine.ProfileUpsertOptions{
		Headline:        "Database tuner and trainer",
		HourlyRateCents: 14000,
		Skills:          []string{"postgres"},
	})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if again.CreatedAt != profile.CreatedAt {
		t.Fatalf("created_at changed: %s vs %s", again.CreatedAt, profile.CreatedAt)
	}
	if again.UpdatedAt == profile.UpdatedAt {
		t.Fatalf("updated_at not advanced")
	}

	got, err := env.Engine.GetConsultantProfile(env.Ctx, consultant.ActorID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Headline != "Database tuner and trainer" || len(got.Skills) != 1 {
		t.Fatalf("profile = %+v", got)
	}

	_, err = env.Engine.GetConsultantProfile(env.Ctx, "nobody")
	wantCode(t, err, engine.CodeNotFound)
}
