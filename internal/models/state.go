package models

import "time"

// StateRecord is the last observed state of one entity for one event type.
type StateRecord struct {
	ID            int64                  `json:"id"`
	EventType     string                 `json:"eventType"`
	EntityKey     string                 `json:"entityKey"`
	EntityID      string                 `json:"entityId,omitempty"`
	StateData     map[string]interface{} `json:"stateData"`
	StateHash     string                 `json:"stateHash"`
	LastCheckedAt time.Time              `json:"lastCheckedAt"`
}
