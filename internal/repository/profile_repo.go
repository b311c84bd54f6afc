package repository

import (
	"context"
	"errors"
	"fmt"

	"nutriplano/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProfileNotFound is returned when no profile row exists for a user id.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository reads and writes the billing fields of profiles.
type ProfileRepository interface {
	// GetProfileByID returns nil, nil when the user has no profile row.
	GetProfileByID(ctx context.Context, userID string) (*model.Profile, error)
	// ApplyEntitlement writes plano, stripe_customer_id and stripe_event_at in a single statement
	// under the row lock. Returns ErrProfileNotFound if the row does not exist.
	ApplyEntitlement(ctx context.Context, u EntitlementUpdate) (*EntitlementResult, error)
}

type profileRepo struct {
	pool *pgxpool.Pool
}

// NewProfileRepo creates a new ProfileRepository.
func NewProfileRepo(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepo{pool: pool}
}

func (r *profileRepo) GetProfileByID(ctx context.Context, userID string) (*model.Profile, error) {
	const q = `
        SELECT id, plano, stripe_customer_id, stripe_event_at
        FROM profiles
        WHERE id = $1
    `
	var p model.Profile
	err := r.pool.QueryRow(ctx, q, userID).Scan(&p.UserID, &p.Plano, &p.StripeCustomerID, &p.StripeEventAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch profile %s: %w", userID, err)
	}
	return &p, nil
}

func (r *profileRepo) ApplyEntitlement(ctx context.Context, u EntitlementUpdate) (*EntitlementResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("starting transaction for profile %s: %w", u.UserID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const selectQ = `
        SELECT id, plano, stripe_customer_id, stripe_event_at
        FROM profiles
        WHERE id = $1
        FOR UPDATE
    `
	var current model.Profile
	err = tx.QueryRow(ctx, selectQ, u.UserID).Scan(&current.UserID, &current.Plano, &current.StripeCustomerID, &current.StripeEventAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("locking profile %s: %w", u.UserID, err)
	}

	next, res := ResolveEntitlement(current, u)

	const updateQ = `
        UPDATE profiles
        SET plano = $2,
            stripe_customer_id = $3,
            stripe_event_at = $4
        WHERE id = $1
    `
	if _, err := tx.Exec(ctx, updateQ, u.UserID, next.Plano, next.StripeCustomerID, next.StripeEventAt); err != nil {
		return nil, fmt.Errorf("updating entitlement for profile %s: %w", u.UserID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing entitlement for profile %s: %w", u.UserID, err)
	}
	return &res, nil
}
