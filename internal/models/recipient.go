package models

// Recipient is an admin contact subscribed to a set of event types.
type Recipient struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	EventTypes []string `json:"eventTypes"`
	IsActive   bool     `json:"isActive"`
}

// Subscribes reports whether r is active and listens to eventType.
func (r Recipient) Subscribes(eventType string) bool {
	if !r.IsActive {
		return false
	}
	for _, et := range r.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}
