package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sif-backend/internal/domain"
	"sif-backend/pkg/constants"
	"sif-backend/pkg/errors"
)

// TokenRepository stores device push tokens, one document per user
type TokenRepository struct {
	client *firestore.Client
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(client *firestore.Client) *TokenRepository {
	return &TokenRepository{client: client}
}

func (r *TokenRepository) doc(uid string) *firestore.DocumentRef {
	return r.client.Collection(constants.TokensCollection).Doc(uid)
}

// Save overwrites the user's token document. Registering a new device
// replaces the previous device's token.
func (r *TokenRepository) Save(ctx context.Context, token *domain.DeviceToken) error {
	if _, err := r.doc(token.UserID).Set(ctx, token); err != nil {
		return fmt.Errorf("failed to save token for %s: %w", token.UserID, err)
	}
	return nil
}

// Get returns the user's current device token
func (r *TokenRepository) Get(ctx context.Context, uid string) (*domain.DeviceToken, error) {
	snap, err := r.doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFoundError("device token")
		}
		return nil, fmt.Errorf("failed to get token for %s: %w", uid, err)
	}

	var token domain.DeviceToken
	if err := snap.DataTo(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token for %s: %w", uid, err)
	}
	return &token, nil
}

// Delete removes the user's token document
func (r *TokenRepository) Delete(ctx context.Context, uid string) error {
	if _, err := r.doc(uid).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete token for %s: %w", uid, err)
	}
	return nil
}
