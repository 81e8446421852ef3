package channels

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"strings"
	"text/template"

	"studio-notifier/internal/models"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
	// variables are the Data keys sent as positional WhatsApp variables.
	variables []string
}

func mustTemplate(name, subject, body string, variables ...string) messageTemplate {
	return messageTemplate{
		subject:   template.Must(template.New(name + ".subject").Parse(subject)),
		body:      template.Must(template.New(name + ".body").Parse(body)),
		variables: variables,
	}
}

var templates = map[string]messageTemplate{
	models.TypeWaitlistSpotAvailable: mustTemplate(models.TypeWaitlistSpotAvailable,
		`Spot available: {{.Get "eventName"}} {{.Get "date"}} {{.Get "time"}}`,
		`A spot opened in {{.Get "eventName"}} on {{.Get "date"}} at {{.Get "time"}}.
Available spots: {{.Get "availableSpots"}} ({{.Get "bookings"}}/{{.Get "maxMembers"}} booked).
Waitlist ({{.Get "waitlistCount"}}):
{{range .Recipients}}{{.Position}}. {{.Name}}{{if .Phone}} {{.Phone}}{{end}}
{{end}}`,
		"eventName", "date", "time", "availableSpots", "waitlistCount"),

	models.TypeBirthdayDigest: mustTemplate(models.TypeBirthdayDigest,
		`Birthdays today ({{.Get "count"}})`,
		`Members celebrating on {{.Get "date"}}:
{{range .Items "items"}}- {{index . "name"}}{{with index . "age"}} ({{.}}){{end}}
{{end}}`,
		"date", "count"),

	models.TypeMembershipExpiryDigest: mustTemplate(models.TypeMembershipExpiryDigest,
		`Memberships expiring soon ({{.Get "count"}})`,
		`Memberships ending in the coming days:
{{range .Items "items"}}- {{index . "name"}}: {{index . "membershipType"}} ends {{index . "endDate"}}
{{end}}`,
		"date", "count"),

	models.TypeNewLeads: mustTemplate(models.TypeNewLeads,
		`{{.Get "count"}} new lead(s)`,
		`New leads:
{{range .Items "leads"}}- {{index . "name"}}{{with index . "phone"}} {{.}}{{end}}{{with index . "source"}} via {{.}}{{end}}
{{end}}`,
		"count"),

	models.TypeNewMemberships: mustTemplate(models.TypeNewMemberships,
		`{{.Get "count"}} new membership(s)`,
		`New memberships:
{{range .Items "memberships"}}- {{index . "name"}}: {{index . "membershipType"}}
{{end}}`,
		"count"),

	models.TypeNewTrials: mustTemplate(models.TypeNewTrials,
		`{{.Get "count"}} new trial booking(s)`,
		`New trial sessions:
{{range .Items "trials"}}- {{index . "name"}}: {{index . "eventName"}} {{index . "date"}} {{index . "time"}}
{{end}}`,
		"count"),

	models.TypeTrialReminder: mustTemplate(models.TypeTrialReminder,
		`Trial reminder: {{.Get "name"}} at {{.Get "time"}}`,
		`{{.Get "name"}} has a trial {{.Get "eventName"}} on {{.Get "date"}} at {{.Get "time"}}.`,
		"name", "eventName", "date", "time"),

	models.TypeDocumentSigned: mustTemplate(models.TypeDocumentSigned,
		`Document signed: {{.Get "documentName"}}`,
		`{{.Get "signerName"}} signed {{.Get "documentName"}}.`,
		"signerName", "documentName"),
}

var htmlLayout = htmltemplate.Must(htmltemplate.New("layout").Parse(
	`<!DOCTYPE html><html><body><h2>{{.Subject}}</h2>{{range .Lines}}<p>{{.}}</p>{{end}}</body></html>`))

// view is the data passed to templates. Get returns "" for missing keys so
// templates never print placeholders.
type view struct {
	models.Notification
}

func (v view) Get(key string) string {
	val, ok := v.Data[key]
	if !ok || val == nil {
		return ""
	}
	return fmt.Sprint(val)
}

func (v view) Items(key string) []map[string]interface{} {
	switch list := v.Data[key].(type) {
	case []map[string]interface{}:
		return list
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// Render renders n with its type's template, falling back to a generic
// listing of the data for unknown types or failed templates.
func Render(n models.Notification) Rendered {
	if tmpl, ok := templates[n.Type]; ok {
		if r, err := tmpl.render(n); err == nil {
			return r
		}
	}
	return renderGeneric(n)
}

func (t messageTemplate) render(n models.Notification) (Rendered, error) {
	v := view{Notification: n}

	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, v); err != nil {
		return Rendered{}, err
	}
	if err := t.body.Execute(&body, v); err != nil {
		return Rendered{}, err
	}

	vars := make([]string, 0, len(t.variables))
	for _, key := range t.variables {
		vars = append(vars, v.Get(key))
	}
	return finish(strings.TrimSpace(subject.String()), strings.TrimSpace(body.String()), vars), nil
}

func renderGeneric(n models.Notification) Rendered {
	subject := "Notification: " + n.Type
	if n.Type == "" {
		subject = "Notification: " + n.EventType
	}

	keys := make([]string, 0, len(n.Data))
	for k := range n.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+len(n.Recipients))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, n.Data[k]))
	}
	for _, p := range n.Recipients {
		lines = append(lines, strings.TrimSpace("- "+p.Name+" "+p.Phone))
	}
	return finish(subject, strings.Join(lines, "\n"), []string{subject})
}

func finish(subject, text string, vars []string) Rendered {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	var html bytes.Buffer
	if err := htmlLayout.Execute(&html, struct {
		Subject string
		Lines   []string
	}{subject, lines}); err != nil {
		html.Reset()
	}

	return Rendered{
		Subject:   subject,
		HTML:      html.String(),
		Text:      text,
		Variables: vars,
	}
}
