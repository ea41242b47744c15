package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/storefrontlabs/storefront-backend/pkg/enums"
)

// Actor identifies who performed a mutation along with the request surface it
// came through. A nil ID means the change was system initiated.
type Actor struct {
	ID       *uuid.UUID
	Email    *string
	IP       *string
	Endpoint *string
}

type actorCtxKey struct{}

// WithActor attaches the acting identity to the context. Middleware calls this
// once per request so services never touch HTTP types.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFromContext returns the acting identity, zero-valued when absent.
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorCtxKey{}).(Actor); ok {
		return actor
	}
	return Actor{}
}

// Change describes one entity mutation to be recorded.
type Change struct {
	Entity   enums.AuditEntity
	RecordID uuid.UUID
	Action   enums.AuditAction
	Before   any
	After    any
}

func (c Change) validate() error {
	if !c.Entity.IsValid() {
		return fmt.Errorf("invalid audit entity %q", c.Entity)
	}
	if c.RecordID == uuid.Nil {
		return fmt.Errorf("audit record id required")
	}
	if !c.Action.IsValid() {
		return fmt.Errorf("invalid audit action %q", c.Action)
	}
	return nil
}

// snapshot marshals a state value, returning nil for nil input.
func snapshot(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal audit snapshot: %w", err)
	}
	return raw, nil
}

// diff computes the changed keys between two marshaled snapshots. Returns nil
// when either side is missing or nothing differs.
func diff(before, after json.RawMessage) (json.RawMessage, error) {
	if before == nil || after == nil {
		return nil, nil
	}

	var beforeMap, afterMap map[string]json.RawMessage
	if err := json.Unmarshal(before, &beforeMap); err != nil {
		return nil, nil
	}
	if err := json.Unmarshal(after, &afterMap); err != nil {
		return nil, nil
	}

	type fieldChange struct {
		From json.RawMessage `json:"from"`
		To   json.RawMessage `json:"to"`
	}
	changes := map[string]fieldChange{}
	for key, afterVal := range afterMap {
		beforeVal, existed := beforeMap[key]
		if !existed || string(beforeVal) != string(afterVal) {
			changes[key] = fieldChange{From: beforeVal, To: afterVal}
		}
	}
	for key, beforeVal := range beforeMap {
		if _, still := afterMap[key]; !still {
			changes[key] = fieldChange{From: beforeVal}
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("marshal audit diff: %w", err)
	}
	return raw, nil
}
