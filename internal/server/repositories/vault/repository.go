package vault

import (
	"context"

	"github.com/dmitrijs2005/homecloud/internal/server/models"
)

// Repository persists the single wrapped envelope key of each user.
type Repository interface {
	Get(ctx context.Context, userID string) (*models.VaultEnvelope, error)
	// Create inserts the first envelope of a user; an existing record yields
	// common.ErrEnvelopeExists and is left untouched.
	Create(ctx context.Context, env *models.VaultEnvelope) error
	// FillSalt stores salt on a legacy record whose salt is empty and whose
	// cipher and IV match; anything else yields common.ErrEnvelopeExists.
	FillSalt(ctx context.Context, userID, cipher, iv, salt string) error
}
