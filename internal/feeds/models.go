package feeds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Feed names, matching the keys of feeds.paths in config.
const (
	FeedWaitlist    = "waitlist"
	FeedSchedule    = "schedule"
	FeedLeads       = "leads"
	FeedUsers       = "users"
	FeedMemberships = "memberships"
	FeedTrials      = "trials"
)

// ID is an upstream identifier that may arrive as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// WaitlistEntry is one person waiting for a spot in a session. Date is
// DD/MM/YYYY in this feed.
type WaitlistEntry struct {
	ID        ID     `json:"id"`
	UserFK    ID     `json:"user_fk"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	EventName string `json:"event_name"`
	Position  int    `json:"position"`
}

// SessionCapacity is a scheduled session with its bookings. Date is
// YYYY-MM-DD in this feed.
type SessionCapacity struct {
	ID         ID     `json:"id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	EventName  string `json:"event_name"`
	MaxMembers int    `json:"maxMembers"`
	Bookings   int    `json:"bookings"`
}

type Lead struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type User struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Birthday string `json:"birthday"`
}

type Membership struct {
	ID                 ID     `json:"id"`
	UserFK             ID     `json:"user_fk"`
	Name               string `json:"name"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	MembershipTypeName string `json:"membership_type_name"`
	Start              string `json:"start"`
	End                string `json:"end"`
	CreatedAt          string `json:"created_at"`
}

type Trial struct {
	ID        ID     `json:"id"`
	UserFK    ID     `json:"user_fk"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	EventName string `json:"event_name"`
	CreatedAt string `json:"created_at"`
}
