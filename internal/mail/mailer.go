// Package mail is the outbound email channel for verification and reset
// links. Delivery is best-effort from the orchestrator's point of view: a
// failed send is logged and never rolls back the token state change that
// preceded it.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// Template selects the message body.
type Template string

const (
	TemplateVerification Template = "verification"
	TemplatePassword     Template = "password"
)

// Payload carries the per-recipient substitutions. URL embeds the raw
// one-time secret; it exists nowhere else outside the recipient's inbox.
type Payload struct {
	Name string
	URL  string
}

// Mailer sends a templated message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to string, tmpl Template, payload Payload) error
}

var bodies = map[Template]*template.Template{
	TemplateVerification: template.Must(template.New("verification").Parse(`
<p>Hi {{.Name}},</p>
<p>Welcome! Please confirm your email address by clicking the link below.
The link is valid for 7 days.</p>
<p><a href="{{.URL}}">Verify my email</a></p>
<p>If you did not create an account, you can ignore this message.</p>`)),
	TemplatePassword: template.Must(template.New("password").Parse(`
<p>Hi {{.Name}},</p>
<p>We received a request to reset your password. The link below is valid
for 15 minutes and can be used once.</p>
<p><a href="{{.URL}}">Reset my password</a></p>
<p>If you did not request this, your password is unchanged.</p>`)),
}

var subjects = map[Template]string{
	TemplateVerification: "Verify your email address",
	TemplatePassword:     "Reset your password",
}

func render(tmpl Template, payload Payload) (subject, body string, err error) {
	t, ok := bodies[tmpl]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", tmpl)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("render mail template: %w", err)
	}
	return subjects[tmpl], buf.String(), nil
}
