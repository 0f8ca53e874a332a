// Package firestore implements the remote document store against
// Cloud Firestore: per-collection repositories plus snapshot
// subscriptions wrapped into channels of immutable result sets.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"sif-backend/pkg/logger"

	"go.uber.org/zap"
)

// Config holds Firestore connection configuration
type Config struct {
	ProjectID       string
	CredentialsPath string // Path to service account JSON file
	CredentialsJSON []byte // Service account JSON content (alternative to file path)
}

// NewClient creates a Firestore client through the Firebase Admin SDK
func NewClient(ctx context.Context, cfg *Config) (*firestore.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore config is required")
	}

	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	} else if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	logger.Info("Firestore client initialized",
		zap.String("project_id", cfg.ProjectID))

	return client, nil
}
