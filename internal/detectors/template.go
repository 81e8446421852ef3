package detectors

import (
	"context"

	"studio-notifier/internal/models"
	"studio-notifier/internal/state"
)

// entityDetector describes a detector that tracks each fetched entity under
// its own state key.
type entityDetector[T any] struct {
	EventType        string
	FetchCurrentData func(ctx context.Context) ([]T, error)
	// Identify returns the upstream id (may be empty) and the stable entity key.
	Identify                 func(entity T) (entityID, entityKey string)
	ExtractStateData         func(entity T) map[string]interface{}
	ShouldNotify             func(cmp *state.Comparison, entity T) bool
	BuildNotificationPayload func(cmp *state.Comparison, entity T) models.Notification
}

// detectEntities runs the shared algorithm: fetch, compare every entity,
// emit where the change is notifiable, and save state for every entity
// whether or not it fired. A fetch error leaves all state untouched.
func detectEntities[T any](ctx context.Context, store state.Store, d entityDetector[T]) ([]models.Notification, error) {
	entities, err := d.FetchCurrentData(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.Notification
	for _, entity := range entities {
		entityID, entityKey := d.Identify(entity)
		stateData := d.ExtractStateData(entity)

		cmp, err := store.CompareState(ctx, d.EventType, entityKey, stateData)
		if err != nil {
			return out, err
		}

		if cmp.HasChanged && d.ShouldNotify(cmp, entity) {
			n := d.BuildNotificationPayload(cmp, entity)
			if n.EntityKey == "" {
				n.EntityKey = entityKey
			}
			if n.EntityID == "" {
				n.EntityID = entityID
			}
			out = append(out, n)
		}

		if err := store.SaveState(ctx, d.EventType, entityKey, entityID, stateData); err != nil {
			return out, err
		}
	}
	return out, nil
}
