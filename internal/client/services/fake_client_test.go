package services

import (
	"context"

	"github.com/dmitrijs2005/matakeeper/internal/client/models"
	"github.com/dmitrijs2005/matakeeper/internal/keys"
)

// fakeClient implements client.Client for unit tests of the services.
type fakeClient struct {
	keys    *models.Keys
	keysErr error

	stored       keys.Bundle
	storedEmail  string
	storedActive bool
	storeErr     error

	active  string
	pingErr error

	setKey   string
	setValue any

	backup    *models.Backup
	exportErr error

	settings map[string]any
	saved    map[string]any
}

func (f *fakeClient) Close() error                   { return nil }
func (f *fakeClient) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeClient) GetKeys(ctx context.Context, email string) (*models.Keys, error) {
	if f.keysErr != nil {
		return nil, f.keysErr
	}
	if f.keys != nil {
		return f.keys, nil
	}
	return &models.Keys{Email: f.storedEmail, Source: "chrome.storage", Bundle: f.stored}, nil
}

func (f *fakeClient) FindAllUsers(ctx context.Context, diagnostics bool) (*models.Users, error) {
	return &models.Users{Users: []string{"a@b.com"}}, nil
}

func (f *fakeClient) Sync(ctx context.Context) (*models.SyncSummary, error) {
	return &models.SyncSummary{SyncedCount: 1}, nil
}

func (f *fakeClient) GetValue(ctx context.Context, key string) (*models.Value, error) {
	return &models.Value{Key: key, Value: f.setValue}, nil
}

func (f *fakeClient) SetValue(ctx context.Context, key string, value any) (string, error) {
	f.setKey, f.setValue = key, value
	return "both", nil
}

func (f *fakeClient) StoreKeys(ctx context.Context, email string, bundle keys.Bundle, setActive bool) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.storedEmail, f.stored, f.storedActive = email, bundle, setActive
	return nil
}

func (f *fakeClient) SetActiveUser(ctx context.Context, email string) error {
	f.active = email
	return nil
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.active = ""
	return nil
}

func (f *fakeClient) Export(ctx context.Context, email string, upload bool) (*models.Backup, error) {
	return f.backup, f.exportErr
}

func (f *fakeClient) GetSettings(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range f.settings {
		out[k] = v
	}
	return out, nil
}

func (f *fakeClient) SaveSettings(ctx context.Context, s map[string]any) error {
	f.saved = s
	return nil
}
