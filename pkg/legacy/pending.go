package legacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
)

// PendingKey holds a JSON array naming the shadow keys that carry writes the entity
// store has not seen yet. It is not one of [Keys] and is never migrated itself.
const PendingKey = "sistema_pendentes"

// Updater applies a read-modify-write to a shadow atomically. fn reports whether it
// changed entries.
type Updater interface {
	Update(ctx context.Context, fn func(entries map[string]string) bool) error
}

func parsePending(raw string) []string {
	var names []string
	if raw == "" || json.Unmarshal([]byte(raw), &names) != nil {
		return nil
	}
	return names
}

func writePending(entries map[string]string, names []string) {
	if len(names) == 0 {
		delete(entries, PendingKey)
		return
	}
	raw, _ := json.Marshal(names)
	entries[PendingKey] = string(raw)
}

// Pending returns the keys marked as holding unsynced writes.
func Pending(ctx context.Context, src Source) ([]string, error) {
	raw, ok, err := src.Get(ctx, PendingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending legacy keys: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return parsePending(raw), nil
}

// SetPending stores blob under name and marks name as pending, in one update when w
// is an [Updater].
func SetPending(ctx context.Context, w Writer, name, blob string) error {
	if u, ok := w.(Updater); ok {
		return u.Update(ctx, func(entries map[string]string) bool {
			entries[name] = blob
			names := parsePending(entries[PendingKey])
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
			writePending(entries, names)
			return true
		})
	}

	if err := w.Set(ctx, name, blob); err != nil {
		return err
	}
	src, ok := w.(Source)
	if !ok {
		return nil
	}
	names, err := Pending(ctx, src)
	if err != nil {
		return err
	}
	if slices.Contains(names, name) {
		return nil
	}
	raw, _ := json.Marshal(append(names, name))
	return w.Set(ctx, PendingKey, string(raw))
}

// ResolvePending clears the pending mark of name, but only while the shadow still
// holds migrated, the blob that was written to the store. A blob replaced in the
// meantime stays pending.
func ResolvePending(ctx context.Context, w Writer, name, migrated string) error {
	resolve := func(entries map[string]string) bool {
		names := parsePending(entries[PendingKey])
		i := slices.Index(names, name)
		if i < 0 || entries[name] != migrated {
			return false
		}
		writePending(entries, slices.Delete(names, i, i+1))
		return true
	}

	if u, ok := w.(Updater); ok {
		return u.Update(ctx, resolve)
	}
	src, ok := w.(Source)
	if !ok {
		return nil
	}
	entries := map[string]string{}
	for _, key := range []string{PendingKey, name} {
		v, found, err := src.Get(ctx, key)
		if err != nil {
			return err
		}
		if found {
			entries[key] = v
		}
	}
	if !resolve(entries) {
		return nil
	}
	if raw, ok := entries[PendingKey]; ok {
		return w.Set(ctx, PendingKey, raw)
	}
	return w.Delete(ctx, PendingKey)
}
