package bus

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/backup"
	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/extstore"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
	"github.com/dmitrijs2005/matakeeper/internal/keylookup"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
	"github.com/dmitrijs2005/matakeeper/internal/settings"
	"github.com/dmitrijs2005/matakeeper/internal/storagesync"
)

// ArchiveSink keeps a copy of exported archives somewhere else.
type ArchiveSink interface {
	Put(ctx context.Context, a backup.Archive) (key, url string, err error)
}

// Deps are the services the handlers call. Sink may be nil.
type Deps struct {
	Sync   *storagesync.Service
	Keys   *keylookup.Service
	Store  extstore.Store
	Relays relay.Locator
	Backup *backup.Assembler
	Sink   ArchiveSink
}

type handlers struct {
	Deps
	now func() time.Time
}

// RegisterHandlers installs every message handler on s.
func RegisterHandlers(s *Server, d Deps) {
	h := &handlers{Deps: d, now: time.Now}

	s.Handle(GetLocalStorageValue, h.getValue)
	s.Handle(SetLocalStorageValue, h.setValue)
	s.Handle(SyncStorage, h.syncStorage)
	s.Handle(SyncCriticalFiles, h.syncCriticalFiles)
	s.Handle(GetKeys, h.getKeys)
	s.Handle(FindAllUsers, h.findAllUsers)
	s.Handle(ListAccounts, h.listAccounts)
	s.Handle(StoreKeys, h.storeKeys)
	s.Handle(GetSettings, h.getSettings)
	s.Handle(SaveSettings, h.saveSettings)
	s.Handle(Heartbeat, h.heartbeat)
	s.Handle(TestStorage, h.testStorage)
	s.Handle(ExportBackup, h.exportBackup)
	s.Handle(SetActiveUser, h.setActiveUser)
	s.Handle(Logout, h.logout)
}

func (h *handlers) timestamp() int64 {
	return common.UnixMillis(h.now())
}

// wire converts a value into the generic form structpb accepts.
func wire(v any) any {
	n, err := jsonx.Normalize(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return n
}

func (h *handlers) getValue(ctx context.Context, req Request) (Response, error) {
	key := req.String("key")
	critical := identity.IsCritical(key)
	if v, ok := req["critical"].(bool); ok {
		critical = v
	}

	res, err := h.Sync.GetValue(ctx, key, critical)
	if err != nil {
		return nil, Fail(err, Response{"key": key, "timestamp": h.timestamp()})
	}
	return Response{
		"value":     wire(res.Value),
		"source":    string(res.Source),
		"timestamp": h.timestamp(),
	}, nil
}

func (h *handlers) setValue(ctx context.Context, req Request) (Response, error) {
	key := req.String("key")
	critical := identity.IsCritical(key)
	if v, ok := req["critical"].(bool); ok {
		critical = v
	}

	res, err := h.Sync.SetValue(ctx, key, req["value"], critical)
	if err != nil {
		return nil, err
	}
	resp := Response{"source": string(res.Source)}
	if res.Warning != "" {
		resp["warning"] = res.Warning
	}
	return resp, nil
}

func (h *handlers) syncStorage(ctx context.Context, _ Request) (Response, error) {
	res, err := h.Sync.SyncAll(ctx)
	if err != nil {
		return nil, Fail(err, Response{"message": res.Message})
	}
	resp := Response{
		"syncedCount":    res.SyncedCount,
		"errorCount":     res.ErrorCount,
		"usersProcessed": res.UsersProcessed,
		"duration":       res.Duration.Milliseconds(),
		"message":        res.Message,
	}
	if res.PartialSync {
		resp["partialSync"] = true
		resp["existingUsers"] = res.ExistingUsers
	}
	if res.TimedOut {
		resp["timedOut"] = true
	}
	return resp, nil
}

func (h *handlers) syncCriticalFiles(ctx context.Context, req Request) (Response, error) {
	files := req.Map("files")
	if files == nil {
		return nil, fmt.Errorf("%w: no files provided", common.ErrInvalidRequest)
	}
	n, err := h.Sync.SyncCriticalFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	return Response{"syncedCount": n}, nil
}

func (h *handlers) getKeys(ctx context.Context, req Request) (Response, error) {
	email := req.String("email")
	if email == "" {
		if data := req.Map("data"); data != nil {
			email = Request(data).String("user")
		}
	}

	res, err := h.Keys.GetKeys(ctx, email)
	if err != nil {
		body := Response{"keysFound": false, "timestamp": h.timestamp()}

		var nf *keylookup.NotFoundError
		var iso *keylookup.IsolationError
		switch {
		case errors.As(err, &nf):
			formats := make([]any, 0, len(nf.Attempts))
			for _, a := range nf.Attempts {
				formats = append(formats, a.Format)
			}
			body["attempts"] = formats
			body["detailedAttempts"] = wire(nf.Attempts)
			body["traceId"] = nf.TraceID
			body["email"] = nf.Email
		case errors.As(err, &iso):
			body["users"] = wire(iso.Users)
		case errors.Is(err, keylookup.ErrNoUser):
			body["reason"] = "no_email"
		}
		return nil, Fail(err, body)
	}

	return Response{
		"keys":      wire(res.Keys.Map()),
		"email":     res.Email,
		"source":    res.Source,
		"format":    res.Format,
		"adopted":   res.Adopted,
		"duration":  res.Duration.Milliseconds(),
		"timestamp": h.timestamp(),
	}, nil
}

func (h *handlers) findAllUsers(ctx context.Context, req Request) (Response, error) {
	users := h.Keys.FindAllUsers(ctx)
	resp := Response{"users": wire(users), "count": len(users)}
	if resp["users"] == nil {
		resp["users"] = []any{}
	}

	if req.Bool("includeDiagnostics") {
		diag := Response{}
		if usage, err := h.Store.Quota(ctx); err == nil {
			diag["storage"] = wire(usage)
		} else {
			diag["storage"] = map[string]any{"error": err.Error()}
		}
		relays := 0
		if rs, err := h.Relays.Relays(ctx); err == nil {
			relays = len(rs)
		}
		diag["relays"] = relays
		if items, err := h.Store.Get(ctx, common.ActiveUserKey); err == nil {
			diag["activeUser"] = wire(items[common.ActiveUserKey])
		}
		resp["diagnostics"] = map[string]any(diag)
	}
	return resp, nil
}

func (h *handlers) listAccounts(context.Context, Request) (Response, error) {
	return Response{"accounts": []any{}}, nil
}

func (h *handlers) storeKeys(ctx context.Context, req Request) (Response, error) {
	email := req.String("email")
	bundle := maps.Clone(req.Map("keys"))

	setActive := req.Bool("setActive")
	if v, ok := bundle["setActive"].(bool); ok {
		setActive = setActive || v
		delete(bundle, "setActive")
	}

	token, err := h.Sync.StoreKeys(ctx, email, bundle, setActive)
	if err != nil {
		return nil, err
	}
	return Response{"email": email, "sanitizedEmail": token}, nil
}

func (h *handlers) getSettings(ctx context.Context, _ Request) (Response, error) {
	s, err := settings.Load(ctx, h.Store)
	if err != nil {
		return nil, err
	}
	return Response{"settings": wire(s)}, nil
}

func (h *handlers) saveSettings(ctx context.Context, req Request) (Response, error) {
	if err := settings.Save(ctx, h.Store, req.Map("settings")); err != nil {
		return nil, err
	}
	return Response{}, nil
}

func (h *handlers) heartbeat(context.Context, Request) (Response, error) {
	return Response{"timestamp": h.timestamp()}, nil
}

// testStorage round-trips a throwaway record through the store.
func (h *handlers) testStorage(ctx context.Context, _ Request) (Response, error) {
	ts := h.timestamp()
	key := common.StorageTestKeyPrefix + strconv.FormatInt(ts, 10)
	want := map[string]any{"timestamp": float64(ts), "test": "storage"}

	if err := h.Store.Set(ctx, map[string]any{key: want}); err != nil {
		return nil, fmt.Errorf("storage test write: %w", err)
	}
	defer func() { _ = h.Store.Remove(context.WithoutCancel(ctx), key) }()

	items, err := h.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("storage test read: %w", err)
	}
	got, _ := items[key].(map[string]any)
	if got["test"] != want["test"] || got["timestamp"] != want["timestamp"] {
		return nil, fmt.Errorf("%w: storage test read back a different value", common.ErrInternal)
	}
	return Response{"key": key, "timestamp": ts}, nil
}

func (h *handlers) exportBackup(ctx context.Context, req Request) (Response, error) {
	email := req.String("email")
	arch, err := h.Backup.Export(ctx, email)
	if err != nil {
		return nil, err
	}

	files := make([]any, 0, len(arch.Files))
	for _, f := range arch.Files {
		files = append(files, f)
	}
	resp := Response{
		"name":    arch.Name,
		"files":   files,
		"size":    len(arch.Data),
		"archive": base64.StdEncoding.EncodeToString(arch.Data),
	}

	if h.Sink != nil && req.Bool("upload") {
		key, url, err := h.Sink.Put(ctx, arch)
		if err != nil {
			resp["uploadError"] = err.Error()
		} else {
			resp["objectKey"] = key
			resp["url"] = url
		}
	}
	return resp, nil
}

func (h *handlers) setActiveUser(ctx context.Context, req Request) (Response, error) {
	res, err := h.Sync.SetActiveUser(ctx, req.String("email"))
	if err != nil {
		return nil, err
	}
	resp := Response{"email": req.String("email"), "source": string(res.Source)}
	if res.Warning != "" {
		resp["warning"] = res.Warning
	}
	return resp, nil
}

func (h *handlers) logout(ctx context.Context, _ Request) (Response, error) {
	if err := h.Sync.ClearActiveUser(ctx); err != nil {
		return nil, err
	}
	return Response{}, nil
}
