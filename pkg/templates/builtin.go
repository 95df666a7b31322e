package templates

import (
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// HTMLTemplate is a Renderer backed by html/template and text/template
// sources with a required-keys schema.
type HTMLTemplate struct {
	html     *htmltemplate.Template
	text     *texttemplate.Template
	required []string
}

// NewHTMLTemplate compiles the HTML and plain-text sources into a Renderer.
// The required keys form the template's schema: Validate rejects payloads
// where any of them is absent or empty.
func NewHTMLTemplate(htmlSrc, textSrc string, required ...string) (*HTMLTemplate, error) {
	ht, err := htmltemplate.New("html").Parse(htmlSrc)
	if err != nil {
		return nil, errors.Join(ErrRenderFailed, err)
	}
	tt, err := texttemplate.New("text").Parse(textSrc)
	if err != nil {
		return nil, errors.Join(ErrRenderFailed, err)
	}

	return &HTMLTemplate{
		html:     ht,
		text:     tt,
		required: required,
	}, nil
}

// Validate checks that every required key is present and non-empty.
func (t *HTMLTemplate) Validate(data map[string]any) error {
	for _, key := range t.required {
		v, ok := data[key]
		if !ok || v == nil {
			return fmt.Errorf("%w: missing required field %q", ErrInvalidData, key)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: required field %q is empty", ErrInvalidData, key)
		}
	}
	return nil
}

// Render executes both templates against the payload.
func (t *HTMLTemplate) Render(data map[string]any) (string, string, error) {
	if err := t.Validate(data); err != nil {
		return "", "", err
	}

	var htmlBuf strings.Builder
	if err := t.html.Execute(&htmlBuf, data); err != nil {
		return "", "", errors.Join(ErrRenderFailed, err)
	}

	var textBuf strings.Builder
	if err := t.text.Execute(&textBuf, data); err != nil {
		return "", "", errors.Join(ErrRenderFailed, err)
	}

	return htmlBuf.String(), textBuf.String(), nil
}

// Built-in transactional templates. Styling is intentionally minimal: inline
// CSS only, since email clients strip almost everything else.
const (
	welcomeHTML = `<html><body style="font-family:sans-serif">
<h1>Welcome, {{.userName}}!</h1>
<p>Your account is ready. Head over to your dashboard to get started.</p>
<p><a href="{{.dashboardUrl}}" style="color:#2563eb">Open dashboard</a></p>
</body></html>`
	welcomeText = `Welcome, {{.userName}}!

Your account is ready. Open your dashboard to get started:
{{.dashboardUrl}}
`

	notificationHTML = `<html><body style="font-family:sans-serif">
<h2>{{.title}}</h2>
<p>{{.message}}</p>
{{if .actionUrl}}<p><a href="{{.actionUrl}}" style="color:#2563eb">View details</a></p>{{end}}
</body></html>`
	notificationText = `{{.title}}

{{.message}}
{{if .actionUrl}}
View details: {{.actionUrl}}
{{end}}`

	passwordResetHTML = `<html><body style="font-family:sans-serif">
<h2>Password reset</h2>
<p>Hi {{.userName}}, a password reset was requested for your account.</p>
<p><a href="{{.resetUrl}}" style="color:#2563eb">Reset password</a></p>
<p>The link expires in {{.expiresIn}}. If you did not request a reset, ignore this email.</p>
</body></html>`
	passwordResetText = `Password reset

Hi {{.userName}}, a password reset was requested for your account.

Reset it here: {{.resetUrl}}

The link expires in {{.expiresIn}}. If you did not request a reset, ignore this email.
`
)

// DefaultRegistry returns a registry preloaded with the built-in
// transactional templates: welcome, notification, and password-reset.
func DefaultRegistry() (*Registry, error) {
	reg := NewRegistry()

	builtins := []struct {
		id       string
		html     string
		text     string
		required []string
	}{
		{"welcome", welcomeHTML, welcomeText, []string{"userName", "dashboardUrl"}},
		{"notification", notificationHTML, notificationText, []string{"title", "message"}},
		{"password-reset", passwordResetHTML, passwordResetText, []string{"userName", "resetUrl", "expiresIn"}},
	}

	for _, b := range builtins {
		tpl, err := NewHTMLTemplate(b.html, b.text, b.required...)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(b.id, tpl); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
