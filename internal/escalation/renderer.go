package escalation

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Template families. Chat channels render markdown, the rest plain text.
const (
	familyText = "text"
	familyChat = "chat"
)

// Renderer renders escalation messages from templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":          titleCase,
		"lower":          lower,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
		"stateLabel":     stateLabel,
	}

	r := &Renderer{templates: make(map[string]*template.Template)}

	for _, family := range []string{familyText, familyChat} {
		for _, kind := range []AlertKind{AlertKindWarning, AlertKindBreach} {
			name := fmt.Sprintf("%s_%s", family, kind)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}
			r.templates[name] = tmpl
		}
	}

	return r, nil
}

// Render renders an alert for the specified channel type.
func (r *Renderer) Render(channelType domain.ChannelType, alert Alert) (Notification, error) {
	name := fmt.Sprintf("%s_%s", templateFamily(channelType), alert.Kind)
	tmpl, ok := r.templates[name]
	if !ok {
		return Notification{}, fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, alert); err != nil {
		return Notification{}, fmt.Errorf("execute template %s: %w", name, err)
	}

	return Notification{
		Kind:     alert.Kind,
		Subject:  renderSubject(alert),
		Body:     strings.TrimSpace(buf.String()),
		Priority: alert.Incident.Priority,
	}, nil
}

func templateFamily(channelType domain.ChannelType) string {
	switch channelType {
	case domain.ChannelTypeMattermost, domain.ChannelTypeSlack:
		return familyChat
	default:
		return familyText
	}
}

func renderSubject(alert Alert) string {
	prefix := "SLA Warning"
	if alert.Kind == AlertKindBreach {
		prefix = "SLA Breach"
	}
	return fmt.Sprintf("[%s] %s %s %s: %s",
		prefix,
		alert.Incident.Priority,
		alert.Incident.Number,
		titleCase(alert.SLAType),
		alert.Incident.Title,
	)
}

// Casers are stateful, so titleCase builds one per call.
func titleCase(v any) string {
	return cases.Title(language.English).String(fmt.Sprint(v))
}

func lower(v any) string {
	return strings.ToLower(fmt.Sprint(v))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}

func stateLabel(s domain.IncidentState) string {
	return titleCase(strings.ReplaceAll(string(s), "_", " "))
}
