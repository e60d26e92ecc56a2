package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// VaultService stores each user's wrapped envelope key. It never sees the
// passphrase, the derived key or the unwrapped envelope key.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *VaultService {
	return &VaultService{db: db, repomanager: m, logger: logger}
}

// Status reports whether userID has an envelope and, if so, its parts.
func (s *VaultService) Status(ctx context.Context, userID string) (*models.VaultStatus, error) {
	env, err := s.repomanager.Vault(s.db).Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return &models.VaultStatus{HasEnvelope: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.VaultStatus{
		HasEnvelope:    true,
		EnvelopeCipher: env.CipherBase64,
		EnvelopeIV:     env.IVBase64,
		EnvelopeSalt:   env.SaltBase64,
		VaultFolderID:  env.VaultFolderID,
	}, nil
}

// SaveEnvelope persists the first envelope of a user. Afterwards the only
// accepted save is one that fills the missing salt of a legacy record with
// the same cipher and IV; anything else is common.ErrEnvelopeExists, so a
// client can never overwrite a working envelope.
func (s *VaultService) SaveEnvelope(ctx context.Context, userID, cipher, iv, salt string) (*models.VaultStatus, error) {
	for _, part := range []struct{ name, value string }{{"cipher", cipher}, {"iv", iv}, {"salt", salt}} {
		if _, err := base64.StdEncoding.DecodeString(part.value); err != nil || part.value == "" {
			return nil, fmt.Errorf("%w: %s must be non-empty base64", common.ErrInvalidEnvelope, part.name)
		}
	}

	repo := s.repomanager.Vault(s.db)
	existing, err := repo.Get(ctx, userID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		env := &models.VaultEnvelope{
			UserID:        userID,
			CipherBase64:  cipher,
			IVBase64:      iv,
			SaltBase64:    salt,
			VaultFolderID: uuid.NewString(),
		}
		if err := repo.Create(ctx, env); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "vault envelope created", "user_id", userID)
	case err != nil:
		return nil, err
	default:
		if existing.SaltBase64 != "" || existing.CipherBase64 != cipher || existing.IVBase64 != iv {
			return nil, common.ErrEnvelopeExists
		}
		if err := repo.FillSalt(ctx, userID, cipher, iv, salt); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "vault envelope salt persisted", "user_id", userID)
	}
	return s.Status(ctx, userID)
}
