// Package legacy reads and writes the browser local storage shadow that held all
// recebimento data before the remote datastore existed.
//
// A shadow is a flat set of string blobs under well-known keys (see [Keys]).
// Browsers upload a snapshot of it, and operators can point the CLI at a JSON file
// holding the same object.
package legacy

import (
	"context"

	"github.com/warehouse/recebimento/pkg/codec"
)

// Key is one well-known local storage key and the entity kind stored under it.
type Key struct {
	Name string
	Kind codec.Kind
}

// Keys lists the known keys in migration order: the session first, so dependents
// can be attached to it.
var Keys = []Key{
	{Name: "sistema_session", Kind: codec.KindSession},
	{Name: "sistema_notas", Kind: codec.KindNotas},
	{Name: "sistema_carros", Kind: codec.KindCarros},
	{Name: "sistema_carros_finalizados", Kind: codec.KindCarrosFinalizados},
	{Name: "sistema_relatorios", Kind: codec.KindRelatorios},
	{Name: "sistema_chat", Kind: codec.KindMensagens},
}

// KindFor returns the entity kind stored under name.
func KindFor(name string) (codec.Kind, bool) {
	for _, k := range Keys {
		if k.Name == name {
			return k.Kind, true
		}
	}
	return "", false
}

// NameFor returns the key holding kind.
func NameFor(kind codec.Kind) (string, bool) {
	for _, k := range Keys {
		if k.Kind == kind {
			return k.Name, true
		}
	}
	return "", false
}

// Names returns the key names in migration order.
func Names() []string {
	names := make([]string, len(Keys))
	for i, k := range Keys {
		names[i] = k.Name
	}
	return names
}

// Source reads legacy blobs.
type Source interface {
	// Get returns the blob under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
}

// Writer modifies legacy blobs. Used for the fallback shadow and for clearing
// migrated keys.
type Writer interface {
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ReadWriter is a Source that can also be written.
type ReadWriter interface {
	Source
	Writer
}
