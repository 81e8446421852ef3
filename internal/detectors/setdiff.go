package detectors

import "context"

const knownIDsKey = "known_ids"

// diffKnownIDs compares current against the id set stored under entityKey and
// replaces the stored set with current. Without a stored set, current becomes
// the baseline and nothing is reported as new. An empty current set never
// replaces a non-empty stored one.
func (b *base) diffKnownIDs(ctx context.Context, entityKey string, current []string) ([]string, error) {
	prev, err := b.store.GetPreviousState(ctx, b.eventType, entityKey)
	if err != nil {
		return nil, err
	}

	currentSet := map[string]struct{}{}
	for _, id := range current {
		if id != "" {
			currentSet[id] = struct{}{}
		}
	}

	var fresh []string
	if prev != nil {
		known := stringSet(prev.StateData["ids"])
		if len(currentSet) == 0 && len(known) > 0 {
			b.logger.Warn("feed returned no ids, keeping stored set", map[string]interface{}{
				"entityKey": entityKey,
				"known":     len(known),
			})
			if err := b.store.SaveState(ctx, b.eventType, entityKey, "", prev.StateData); err != nil {
				return nil, err
			}
			return nil, nil
		}
		for id := range currentSet {
			if _, ok := known[id]; !ok {
				fresh = append(fresh, id)
			}
		}
		sortIDs(fresh)
	} else {
		b.logger.Info("adopting baseline id set", map[string]interface{}{
			"entityKey": entityKey,
			"count":     len(currentSet),
		})
	}

	stateData := map[string]interface{}{
		"ids":   setKeys(currentSet),
		"count": len(currentSet),
	}
	if err := b.store.SaveState(ctx, b.eventType, entityKey, "", stateData); err != nil {
		return nil, err
	}
	return fresh, nil
}
