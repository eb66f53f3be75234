package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"biliticket/invitehub/internal/model"
)

// ErrNotConsumable is returned by Consume when the locked row has no uses left.
var ErrNotConsumable = errors.New("invite code has no remaining uses")

// InviteCodeRepository persists invite codes. Lookups that miss return
// gorm.ErrRecordNotFound; hash collisions on Create return gorm.ErrDuplicatedKey.
type InviteCodeRepository interface {
	Create(ctx context.Context, code *model.InviteCode) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.InviteCode, error)
	GetActiveByHash(ctx context.Context, hash string) (*model.InviteCode, error)
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	List(ctx context.Context, includeInactive bool) ([]model.InviteCode, error)
	// Update applies fn to the row under an exclusive lock and saves the result.
	Update(ctx context.Context, id uuid.UUID, fn func(code *model.InviteCode) error) (*model.InviteCode, error)
	// Delete removes the code and its usage rows. A missing id is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
	// Consume takes one use of an active code and records the success attempt
	// in the same transaction. It returns the code as committed.
	Consume(ctx context.Context, id uuid.UUID, attempt *model.UsageAttempt) (*model.InviteCode, error)
}
