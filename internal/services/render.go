package services

import (
	"fmt"
	"html"
	"net/mail"
	"regexp"
	"strings"

	"sessionreminders/internal/models"

	"github.com/russross/blackfriday/v2"
)

var placeholderRegex = regexp.MustCompile(`\{([a-z_]+)\}`)

const defaultBodyTemplate = `Hi {user_name},

This is a reminder that **{session_title}** starts {session_time}.

[Join the session]({session_url})

See you there!`

const sessionTimeLayout = "Mon Jan 2, 3:04 PM MST"

// markdownEscaper backslash-escapes markdown metacharacters in template values
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "#", `\#`, "!", `\!`, "|", `\|`, "~", `\~`,
)

// renderHTML uses a fresh renderer per call; blackfriday renderers keep state
func renderHTML(markdown string) string {
	r := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags | blackfriday.Safelink | blackfriday.NofollowLinks,
	})
	return string(blackfriday.Run([]byte(markdown), blackfriday.WithRenderer(r)))
}

// RenderedReminder is a subject plus plain-text and HTML bodies
type RenderedReminder struct {
	Subject   string
	PlainText string
	HTML      string
}

// RenderReminder fills the configuration templates for item. Unknown
// placeholders and empty subjects are ErrTemplate; a missing or malformed
// address is ErrInvalidRecipient.
func RenderReminder(cfg models.ReminderConfiguration, item models.PendingReminderItem, baseURL string) (RenderedReminder, error) {
	if _, err := mail.ParseAddress(item.UserEmail); err != nil {
		return RenderedReminder{}, fmt.Errorf("%w: %q: %v", ErrInvalidRecipient, item.UserEmail, err)
	}

	vars := templateVars(cfg, item, baseURL)

	subject, err := fill(cfg.SubjectTemplate, vars, nil)
	if err != nil {
		return RenderedReminder{}, err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return RenderedReminder{}, fmt.Errorf("%w: empty subject for %s", ErrTemplate, cfg.ReminderType)
	}

	body := cfg.BodyTemplate
	if strings.TrimSpace(body) == "" {
		body = defaultBodyTemplate
	}
	plain, err := fill(body, vars, nil)
	if err != nil {
		return RenderedReminder{}, err
	}
	// values are escaped before markdown rendering so titles cannot inject markup
	markdown, err := fill(body, vars, escapeValue)
	if err != nil {
		return RenderedReminder{}, err
	}

	return RenderedReminder{
		Subject:   subject,
		PlainText: plain,
		HTML:      renderHTML(markdown),
	}, nil
}

func templateVars(cfg models.ReminderConfiguration, item models.PendingReminderItem, baseURL string) map[string]string {
	name := item.UserName
	if name == "" {
		name = strings.Split(item.UserEmail, "@")[0]
	}
	url := item.Session.MeetingURL
	if url == "" {
		url = fmt.Sprintf("%s/sessions/%s", strings.TrimRight(baseURL, "/"), item.Session.ID)
	}
	return map[string]string{
		"user_name":     name,
		"session_title": item.Session.Title,
		"session_time":  item.Session.StartTime.UTC().Format(sessionTimeLayout),
		"session_url":   url,
		"session_host":  item.Session.HostName,
		"reminder_name": cfg.DisplayName,
	}
}

func escapeValue(key, v string) string {
	if key == "session_url" {
		return v
	}
	return html.EscapeString(markdownEscaper.Replace(v))
}

func fill(tmpl string, vars map[string]string, escape func(key, v string) string) (string, error) {
	var missing []string
	out := placeholderRegex.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := vars[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		if escape != nil {
			return escape(key, v)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: unknown placeholder(s) %s", ErrTemplate, strings.Join(missing, ", "))
	}
	return out, nil
}

var knownPlaceholders = map[string]bool{
	"user_name": true, "session_title": true, "session_time": true,
	"session_url": true, "session_host": true, "reminder_name": true,
}

// ValidateTemplate rejects templates that use placeholders RenderReminder cannot fill
func ValidateTemplate(tmpl string) error {
	var unknown []string
	for _, m := range placeholderRegex.FindAllStringSubmatch(tmpl, -1) {
		if !knownPlaceholders[m[1]] {
			unknown = append(unknown, m[1])
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown placeholder(s) %s", ErrTemplate, strings.Join(unknown, ", "))
	}
	return nil
}
