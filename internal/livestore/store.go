// Package livestore holds the low-latency telemetry tree the helmets report into.
//
// The tree is addressed with slash paths (helmets/{id}/current, helmets/{id}/commands/reset,
// ...). Values are JSON-like: map[string]any, []any, string, float64, bool. Writing nil
// removes the node, and nodes left empty by a removal disappear with it.
package livestore

import (
	"context"
	"fmt"
	"sort"

	"github.com/lucaslui/minermonitor/internal/model"
)

const Root = "helmets"

// Update is one whole-subtree push. Value is nil when the subtree does not exist.
type Update struct {
	Path  string
	Value any
	Err   error
}

type Store interface {
	// Subscribe pushes the current value of path, then a new value after every change
	// below or above it. The channel is closed when ctx is cancelled. Slow readers only
	// see the latest value.
	Subscribe(ctx context.Context, path string) (<-chan Update, error)
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
	Delete(ctx context.Context, path string) error
}

func HelmetPath(id model.HelmetID) string  { return fmt.Sprintf("%s/%s", Root, id) }
func CurrentPath(id model.HelmetID) string { return HelmetPath(id) + "/current" }
func HistoryPath(id model.HelmetID) string { return HelmetPath(id) + "/history" }
func CommandPath(id model.HelmetID, name string) string {
	return HelmetPath(id) + "/commands/" + name
}

// Helmets lists the ids present under Root, in ascending order.
func Helmets(ctx context.Context, s Store) ([]model.HelmetID, error) {
	raw, err := s.Get(ctx, Root)
	if err != nil {
		return nil, err
	}
	tree, _ := raw.(map[string]any)
	ids := make([]model.HelmetID, 0, len(tree))
	for k := range tree {
		ids = append(ids, model.HelmetID(k))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
