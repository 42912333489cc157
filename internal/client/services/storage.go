package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/matakeeper/internal/client/client"
	"github.com/dmitrijs2005/matakeeper/internal/client/models"
	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/filex"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
)

// BackupDir is where exports land when no path is given.
const BackupDir = "backups"

type StorageService interface {
	Sync(ctx context.Context) (*models.SyncSummary, error)
	Get(ctx context.Context, key string) (*models.Value, error)
	Set(ctx context.Context, key, raw string) (string, error)
	Users(ctx context.Context, diagnostics bool) (*models.Users, error)
	Keys(ctx context.Context, email string) (*models.Keys, error)
	Export(ctx context.Context, email, path string, upload bool) (string, *models.Backup, error)
	Settings(ctx context.Context) (map[string]any, error)
	SaveSetting(ctx context.Context, name, raw string) (map[string]any, error)
}

type storageService struct {
	client client.Client
}

func NewStorageService(c client.Client) StorageService {
	return &storageService{client: c}
}

func (s *storageService) Sync(ctx context.Context) (*models.SyncSummary, error) {
	return s.client.Sync(ctx)
}

func (s *storageService) Get(ctx context.Context, key string) (*models.Value, error) {
	return s.client.GetValue(ctx, strings.TrimSpace(key))
}

// Set stores raw under key. JSON objects and arrays are sent structured.
func (s *storageService) Set(ctx context.Context, key, raw string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: key is required", common.ErrInvalidRequest)
	}
	return s.client.SetValue(ctx, key, jsonx.Decode(raw))
}

func (s *storageService) Users(ctx context.Context, diagnostics bool) (*models.Users, error) {
	return s.client.FindAllUsers(ctx, diagnostics)
}

func (s *storageService) Keys(ctx context.Context, email string) (*models.Keys, error) {
	return s.client.GetKeys(ctx, strings.TrimSpace(email))
}

// Export writes the backup archive to path, or to BackupDir/<name> under the
// working directory when path is empty. It returns the written path.
func (s *storageService) Export(ctx context.Context, email, path string, upload bool) (string, *models.Backup, error) {
	b, err := s.client.Export(ctx, email, upload)
	if err != nil {
		return "", nil, err
	}

	if path == "" {
		dir, err := filex.EnsureSubDir(BackupDir)
		if err != nil {
			return "", nil, err
		}
		path = filepath.Join(dir, b.Name)
	}
	if err := filex.WritePrivate(path, b.Data); err != nil {
		return "", nil, err
	}
	return path, b, nil
}

func (s *storageService) Settings(ctx context.Context) (map[string]any, error) {
	return s.client.GetSettings(ctx)
}

// SaveSetting updates one setting and returns the saved set.
func (s *storageService) SaveSetting(ctx context.Context, name, raw string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: setting name is required", common.ErrInvalidRequest)
	}

	current, err := s.client.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	current[name] = parseScalar(raw)

	if err := s.client.SaveSettings(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// parseScalar reads booleans and numbers; anything else stays a string.
func parseScalar(raw string) any {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
