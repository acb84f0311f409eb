package repo

import (
	"context"
	"database/sql"
	"strings"

	"expertline/internal/domain"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(id,display_name,is_admin,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO NOTHING`, a.ID, nullable(a.DisplayName), a.IsAdmin, a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,display_name,is_admin,created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &name, &a.IsAdmin, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if name.Valid {
		a.DisplayName = name.String
	}
	return a, err
}

func (r Repo) UpsertConsultantProfile(ctx context.Context, tx *sql.Tx, p domain.ConsultantProfile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO consultant_profiles(actor_id,headline,bio,hourly_rate_cents,currency,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET headline=excluded.headline, bio=excluded.bio, hourly_rate_cents=excluded.hourly_rate_cents, currency=excluded.currency, updated_at=excluded.updated_at`,
		p.ActorID, p.Headline, nullableStringPtr(p.Bio), p.HourlyRateCents, p.Currency, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) getConsultantProfile(ctx context.Context, q querier, actorID string) (domain.ConsultantProfile, error) {
	var p domain.ConsultantProfile
	var bio sql.NullString
	err := q.QueryRowContext(ctx, `SELECT actor_id,headline,bio,hourly_rate_cents,currency,created_at,updated_at FROM consultant_profiles WHERE actor_id=?`, actorID).
		Scan(&p.ActorID, &p.Headline, &bio, &p.HourlyRateCents, &p.Currency, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if bio.Valid {
		p.Bio = &bio.String
	}
	skills, err := r.listProfileSkills(ctx, q, actorID)
	if err != nil {
		return p, err
	}
	p.Skills = skills
	return p, nil
}

func (r Repo) GetConsultantProfile(ctx context.Context, actorID string) (domain.ConsultantProfile, error) {
	return r.getConsultantProfile(ctx, r.DB, actorID)
}

func (r Repo) GetConsultantProfileTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.ConsultantProfile, error) {
	return r.getConsultantProfile(ctx, tx, actorID)
}

// HasConsultantProfile reports whether the actor has published a profile.
func (r Repo) HasConsultantProfile(ctx context.Context, actorID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM consultant_profiles WHERE actor_id=?`, actorID).Scan(&n)
	return n > 0, err
}

func (r Repo) listProfileSkills(ctx context.Context, q querier, actorID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT s.slug FROM profile_skills ps JOIN skills s ON s.id=ps.skill_id WHERE ps.actor_id=? ORDER BY s.slug`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// ReplaceProfileSkills rewrites a consultant's skill links. Skills are created
// on first use, keyed by normalized slug, so repeated upserts are idempotent.
func (r Repo) ReplaceProfileSkills(ctx context.Context, tx *sql.Tx, actorID string, slugs []string, newSkillID func() string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_skills WHERE actor_id=?`, actorID); err != nil {
		return err
	}
	for _, slug := range slugs {
		skillID, err := r.ensureSkill(ctx, tx, slug, newSkillID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO profile_skills(actor_id,skill_id) VALUES (?,?)`, actorID, skillID); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ensureSkill(ctx context.Context, tx *sql.Tx, name string, newSkillID func() string) (string, error) {
	slug := SlugifySkill(name)
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM skills WHERE slug=?`, slug).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	id = newSkillID()
	_, err = tx.ExecContext(ctx, `INSERT INTO skills(id,name,slug) VALUES (?,?,?)`, id, strings.TrimSpace(name), slug)
	return id, err
}

// SlugifySkill normalizes a skill name: lowercase, spaces collapsed to single
// hyphens.
func SlugifySkill(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "-")
}

// MatchCandidate is a consultant profile ranked by skill overlap.
type MatchCandidate struct {
	Profile domain.ConsultantProfile
	Overlap int
}

// MatchProfiles returns consultant profiles ordered by how many of the given
// skill slugs they share, most overlap first. Profiles with no overlap are
// excluded. With no slugs given, all profiles qualify with zero overlap.
func (r Repo) MatchProfiles(ctx context.Context, slugs []string, excludeActorID string, limit int) ([]MatchCandidate, error) {
	if limit <= 0 {
		limit = 10
	}
	var query string
	var args []any
	if len(slugs) == 0 {
		query = `SELECT actor_id, 0 AS overlap FROM consultant_profiles WHERE actor_id != ? ORDER BY updated_at DESC LIMIT ?`
		args = []any{excludeActorID, limit}
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(slugs)), ",")
		query = `SELECT ps.actor_id, COUNT(*) AS overlap
FROM profile_skills ps JOIN skills s ON s.id=ps.skill_id
WHERE s.slug IN (` + placeholders + `) AND ps.actor_id != ?
GROUP BY ps.actor_id ORDER BY overlap DESC, ps.actor_id ASC LIMIT ?`
		for _, slug := range slugs {
			args = append(args, SlugifySkill(slug))
		}
		args = append(args, excludeActorID, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	type hit struct {
		actorID string
		overlap int
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.actorID, &h.overlap); err != nil {
			rows.Close()
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	var res []MatchCandidate
	for _, h := range hits {
		p, err := r.GetConsultantProfile(ctx, h.actorID)
		if err != nil {
			return nil, err
		}
		res = append(res, MatchCandidate{Profile: p, Overlap: h.overlap})
	}
	return res, nil
}
