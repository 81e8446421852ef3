package feeds

import "studio-notifier/internal/common/validation"

var idType = []string{"string", "integer"}

func listOf(required []string, properties map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type":       "object",
			"required":   required,
			"properties": properties,
		},
	}
}

var schemas = map[string]*validation.Schema{
	FeedWaitlist: validation.MustCompile(listOf(
		[]string{"date", "time", "event_name"},
		map[string]interface{}{
			"id":         map[string]interface{}{"type": idType},
			"user_fk":    map[string]interface{}{"type": idType},
			"date":       map[string]interface{}{"type": "string", "minLength": 1},
			"time":       map[string]interface{}{"type": "string", "minLength": 1},
			"event_name": map[string]interface{}{"type": "string", "minLength": 1},
			"position":   map[string]interface{}{"type": "integer", "minimum": 0},
		},
	)),
	FeedSchedule: validation.MustCompile(listOf(
		[]string{"date", "time", "event_name", "maxMembers", "bookings"},
		map[string]interface{}{
			"id":         map[string]interface{}{"type": idType},
			"date":       map[string]interface{}{"type": "string", "minLength": 1},
			"time":       map[string]interface{}{"type": "string", "minLength": 1},
			"event_name": map[string]interface{}{"type": "string", "minLength": 1},
			"maxMembers": map[string]interface{}{"type": "integer", "minimum": 0},
			"bookings":   map[string]interface{}{"type": "integer", "minimum": 0},
		},
	)),
	FeedLeads: validation.MustCompile(listOf(
		[]string{"id"},
		map[string]interface{}{
			"id":         map[string]interface{}{"type": idType},
			"created_at": map[string]interface{}{"type": "string"},
		},
	)),
	FeedUsers: validation.MustCompile(listOf(
		[]string{"id"},
		map[string]interface{}{
			"id":       map[string]interface{}{"type": idType},
			"birthday": map[string]interface{}{"type": []string{"string", "null"}},
		},
	)),
	FeedMemberships: validation.MustCompile(listOf(
		[]string{"id"},
		map[string]interface{}{
			"id":                   map[string]interface{}{"type": idType},
			"user_fk":              map[string]interface{}{"type": idType},
			"membership_type_name": map[string]interface{}{"type": "string"},
			"end":                  map[string]interface{}{"type": []string{"string", "null"}},
		},
	)),
	FeedTrials: validation.MustCompile(listOf(
		[]string{"id", "date", "time"},
		map[string]interface{}{
			"id":   map[string]interface{}{"type": idType},
			"date": map[string]interface{}{"type": "string", "minLength": 1},
			"time": map[string]interface{}{"type": "string", "minLength": 1},
		},
	)),
}
