package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/models"
	"github.com/aura-erp/meeting-scheduler/internal/store"
)

// Directory mirrors identity-provider users into the local users table so invitation emails and
// participant names can be resolved. The identity provider stays the source of truth.
type Directory struct {
	store store.Store
	now   func() time.Time
	seen  sync.Map // uuid.UUID -> email+"\x00"+name last written
}

// NewDirectory creates a user directory mirror.
func NewDirectory(s store.Store) *Directory {
	return &Directory{store: s, now: time.Now}
}

// Remember upserts the user described by claims unless the same values were already written.
func (d *Directory) Remember(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.UserID == uuid.Nil {
		return nil
	}
	sig := claims.Email + "\x00" + claims.Name
	if prev, ok := d.seen.Load(claims.UserID); ok && prev.(string) == sig {
		return nil
	}
	u := &models.User{
		ID:        claims.UserID,
		Email:     claims.Email,
		FullName:  claims.Name,
		CreatedAt: d.now().UTC(),
	}
	err := d.store.Update(ctx, func(q store.Queries) error {
		return q.UpsertUser(ctx, u)
	})
	if err != nil {
		return err
	}
	d.seen.Store(claims.UserID, sig)
	return nil
}

// Lookup returns the mirrored entry for id.
func (d *Directory) Lookup(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var users map[uuid.UUID]models.User
	err := d.store.View(ctx, func(q store.Queries) error {
		var err error
		users, err = q.GetUsers(ctx, []uuid.UUID{id})
		return err
	})
	if err != nil {
		return nil, err
	}
	u, ok := users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// ResolveEmails returns the mirrored address of every id that has one.
func (d *Directory) ResolveEmails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	err := d.store.View(ctx, func(q store.Queries) error {
		users, err := q.GetUsers(ctx, ids)
		if err != nil {
			return err
		}
		for id, u := range users {
			if u.Email != "" {
				out[id] = u.Email
			}
		}
		return nil
	})
	return out, err
}
