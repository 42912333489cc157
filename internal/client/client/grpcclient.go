package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/bus"
	"github.com/dmitrijs2005/matakeeper/internal/client/models"
	"github.com/dmitrijs2005/matakeeper/internal/keys"
	"google.golang.org/grpc"
)

type GRPCClient struct {
	endpointURL string
	bus         *bus.Client
}

// NewGRPCClient connects to the agent at endpointURL.
func NewGRPCClient(endpointURL string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c, err := bus.Dial(endpointURL, timeout, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{endpointURL: endpointURL, bus: c}, nil
}

func (s *GRPCClient) Close() error {
	return s.bus.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.bus.Send(ctx, bus.Heartbeat, nil)
	if err != nil {
		return err
	}
	if ok, _ := resp["success"].(bool); !ok {
		return ErrUnavailable
	}
	return nil
}

// GetKeys looks up the bundle for email; an empty email means the active
// user.
func (s *GRPCClient) GetKeys(ctx context.Context, email string) (*models.Keys, error) {
	fields := map[string]any{}
	if email != "" {
		fields["email"] = email
	}
	resp, err := s.bus.Send(ctx, bus.GetKeys, fields)
	if err != nil {
		return nil, err
	}

	raw, ok := resp["keys"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: no keys in reply", ErrUnexpectedResponse)
	}
	return &models.Keys{
		Email:    str(resp, "email"),
		Source:   str(resp, "source"),
		Format:   str(resp, "format"),
		Adopted:  flag(resp, "adopted"),
		Duration: millis(resp, "duration"),
		Bundle:   keys.Bundle(raw),
	}, nil
}

func (s *GRPCClient) FindAllUsers(ctx context.Context, diagnostics bool) (*models.Users, error) {
	resp, err := s.bus.Send(ctx, bus.FindAllUsers, map[string]any{"includeDiagnostics": diagnostics})
	if err != nil {
		return nil, err
	}
	out := &models.Users{Users: strs(resp, "users")}
	if d, ok := resp["diagnostics"].(map[string]any); ok {
		out.Diagnostics = d
	}
	return out, nil
}

func (s *GRPCClient) Sync(ctx context.Context) (*models.SyncSummary, error) {
	resp, err := s.bus.Send(ctx, bus.SyncStorage, nil)
	if err != nil {
		return nil, err
	}
	return &models.SyncSummary{
		SyncedCount:    num(resp, "syncedCount"),
		ErrorCount:     num(resp, "errorCount"),
		UsersProcessed: num(resp, "usersProcessed"),
		Duration:       millis(resp, "duration"),
		Message:        str(resp, "message"),
		PartialSync:    flag(resp, "partialSync"),
		ExistingUsers:  num(resp, "existingUsers"),
		TimedOut:       flag(resp, "timedOut"),
	}, nil
}

func (s *GRPCClient) GetValue(ctx context.Context, key string) (*models.Value, error) {
	resp, err := s.bus.Send(ctx, bus.GetLocalStorageValue, map[string]any{"key": key})
	if err != nil {
		return nil, err
	}
	return &models.Value{Key: key, Value: resp["value"], Source: str(resp, "source")}, nil
}

// SetValue stores value under key and returns the backend that took it.
// A partial write is reported as the agent's warning appended to the source.
func (s *GRPCClient) SetValue(ctx context.Context, key string, value any) (string, error) {
	resp, err := s.bus.Send(ctx, bus.SetLocalStorageValue, map[string]any{"key": key, "value": value})
	if err != nil {
		return "", err
	}
	source := str(resp, "source")
	if w := str(resp, "warning"); w != "" {
		source = fmt.Sprintf("%s (%s)", source, w)
	}
	return source, nil
}

func (s *GRPCClient) StoreKeys(ctx context.Context, email string, bundle keys.Bundle, setActive bool) error {
	_, err := s.bus.Send(ctx, bus.StoreKeys, map[string]any{
		"email":     email,
		"keys":      bundle.Map(),
		"setActive": setActive,
	})
	return err
}

func (s *GRPCClient) SetActiveUser(ctx context.Context, email string) error {
	_, err := s.bus.Send(ctx, bus.SetActiveUser, map[string]any{"email": email})
	return err
}

func (s *GRPCClient) Logout(ctx context.Context) error {
	_, err := s.bus.Send(ctx, bus.Logout, nil)
	return err
}

func (s *GRPCClient) Export(ctx context.Context, email string, upload bool) (*models.Backup, error) {
	fields := map[string]any{"upload": upload}
	if email != "" {
		fields["email"] = email
	}
	resp, err := s.bus.Send(ctx, bus.ExportBackup, fields)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(str(resp, "archive"))
	if err != nil {
		return nil, fmt.Errorf("%w: archive: %v", ErrUnexpectedResponse, err)
	}
	return &models.Backup{
		Name:        str(resp, "name"),
		Files:       strs(resp, "files"),
		Data:        data,
		ObjectKey:   str(resp, "objectKey"),
		URL:         str(resp, "url"),
		UploadError: str(resp, "uploadError"),
	}, nil
}

func (s *GRPCClient) GetSettings(ctx context.Context) (map[string]any, error) {
	resp, err := s.bus.Send(ctx, bus.GetSettings, nil)
	if err != nil {
		return nil, err
	}
	out, ok := resp["settings"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: no settings in reply", ErrUnexpectedResponse)
	}
	return out, nil
}

func (s *GRPCClient) SaveSettings(ctx context.Context, settings map[string]any) error {
	_, err := s.bus.Send(ctx, bus.SaveSettings, map[string]any{"settings": settings})
	return err
}

func str(r bus.Response, key string) string {
	s, _ := r[key].(string)
	return s
}

func flag(r bus.Response, key string) bool {
	b, _ := r[key].(bool)
	return b
}

// num reads a JSON number; structpb carries every number as float64.
func num(r bus.Response, key string) int {
	f, _ := r[key].(float64)
	return int(f)
}

func millis(r bus.Response, key string) time.Duration {
	f, _ := r[key].(float64)
	return time.Duration(f) * time.Millisecond
}

func strs(r bus.Response, key string) []string {
	list, _ := r[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
