package client

import (
	"context"

	"github.com/dmitrijs2005/matakeeper/internal/client/models"
	"github.com/dmitrijs2005/matakeeper/internal/keys"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	GetKeys(ctx context.Context, email string) (*models.Keys, error)
	FindAllUsers(ctx context.Context, diagnostics bool) (*models.Users, error)
	Sync(ctx context.Context) (*models.SyncSummary, error)
	GetValue(ctx context.Context, key string) (*models.Value, error)
	SetValue(ctx context.Context, key string, value any) (string, error)
	StoreKeys(ctx context.Context, email string, bundle keys.Bundle, setActive bool) error
	SetActiveUser(ctx context.Context, email string) error
	Logout(ctx context.Context) error
	Export(ctx context.Context, email string, upload bool) (*models.Backup, error)
	GetSettings(ctx context.Context) (map[string]any, error)
	SaveSettings(ctx context.Context, s map[string]any) error
}
