// Package engine implements the consultation lifecycle: request drafting and
// publication, offers with a single-winner accept, the booked engagement
// workspace, and the transfer pack gate on completion. All state transitions
// run in a single transaction with their audit entries.
package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"expertline/internal/audit"
	"expertline/internal/config"
	"expertline/internal/domain"
	"expertline/internal/draft"
	"expertline/internal/engine/access"
	"expertline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Audit   audit.Writer
	Drafter draft.Service
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, drafter draft.Service) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Drafter: drafter,
		Config:  cfg,
		Now:     time.Now,
	}
}

// audit returns the writer with its clock tied to the engine's, so entity
// timestamps and audit timestamps come from the same source.
func (e Engine) audit() audit.Writer {
	w := e.Audit
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) newID() string {
	return uuid.NewString()
}

// EnsureActor records the principal in the actors table so foreign keys hold.
// Safe to call on every authenticated operation.
func (e Engine) EnsureActor(ctx context.Context, tx *sql.Tx, p access.Principal) error {
	return e.Repo.EnsureActor(ctx, tx, domain.Actor{
		ID:        p.ActorID,
		IsAdmin:   p.Admin,
		CreatedAt: e.nowRFC3339(),
	})
}

// engagementParticipants resolves the two sides of an engagement through its
// booking.
func (e Engine) engagementParticipants(ctx context.Context, eng domain.Engagement) (domain.Booking, access.Entity, error) {
	b, err := e.Repo.GetBooking(ctx, eng.BookingID)
	if err != nil {
		return b, access.Entity{}, classify(err)
	}
	return b, access.Entity{Participants: []string{b.ClientID, b.ConsultantID}}, nil
}
