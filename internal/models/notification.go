// internal/models/notification.go
package models

// Event types. Recipients subscribe to these through their event_types column.
const (
	EventWaitlistCapacity = "waitlist_capacity"
	EventBirthday         = "birthday"
	EventMembershipExpiry = "membership_expiry"
	EventNewLead          = "new_lead"
	EventNewMembership    = "new_membership"
	EventTrial            = "trial"
	EventDocumentSigned   = "document_signed"
)

// Notification types select the rendered template.
const (
	TypeWaitlistSpotAvailable  = "waitlist_spot_available"
	TypeBirthdayDigest         = "birthday_digest"
	TypeMembershipExpiryDigest = "membership_expiry_digest"
	TypeNewLeads               = "new_leads"
	TypeNewMemberships         = "new_memberships"
	TypeNewTrials              = "new_trials"
	TypeTrialReminder          = "trial_reminder"
	TypeDocumentSigned         = "document_signed"
)

// Notification is a detected transition ready for delivery. Recipients are
// the people the event is about, not the admins who receive it.
type Notification struct {
	Type       string                 `json:"type"`
	EventType  string                 `json:"eventType"`
	EntityID   string                 `json:"entityId,omitempty"`
	EntityKey  string                 `json:"entityKey"`
	Recipients []Participant          `json:"recipients,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Participant is a domain person referenced by a notification.
type Participant struct {
	UserID   string `json:"userId,omitempty"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Position int    `json:"position,omitempty"`
}
