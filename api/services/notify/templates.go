package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

type message struct {
	subject string
	body    *template.Template
}

const layout = `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto;padding:24px;">{{template "content" .}}<hr style="border:none;border-top:1px solid #eee;margin:24px 0;" />{{template "footer" .}}</div>`

func mustTemplate(content, footer string) *template.Template {
	t := template.Must(template.New("layout").Parse(layout))
	template.Must(t.New("content").Parse(content))
	template.Must(t.New("footer").Parse(`<p style="color:#888;font-size:12px;">` + footer + `</p>`))
	return t
}

var messages = map[Kind]message{
	KindWelcome: {
		subject: "Welcome to the platform!",
		body: mustTemplate(
			`<h1 style="color:#6c63ff;">Welcome aboard!</h1><p>Thanks for signing up. You now have access to a <strong>free plan</strong>.</p><p>Upgrade anytime to unlock premium features.</p>`,
			`If you did not create this account, please ignore this email.`,
		),
	},
	KindActivation: {
		subject: "You're now on the {{.plan}} plan!",
		body: mustTemplate(
			`<h1 style="color:#6c63ff;">Subscription Activated</h1><p>Your <strong>{{.plan}}</strong> plan is now active. Enjoy all the premium features!</p>`,
			`Manage your subscription from your dashboard at any time.`,
		),
	},
	KindCancellation: {
		subject: "Subscription Canceled",
		body: mustTemplate(
			`<h1 style="color:#e74c3c;">Subscription Canceled</h1><p>Your subscription has been canceled. You can re-subscribe anytime from your dashboard.</p>`,
			`We'd love to have you back!`,
		),
	},
}

// Render produces the subject and HTML body for kind.
func Render(kind Kind, data Data) (subject, html string, err error) {
	m, ok := messages[kind]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	subj, err := template.New("subject").Parse(m.subject)
	if err != nil {
		return "", "", fmt.Errorf("parse subject: %w", err)
	}
	var sb bytes.Buffer
	if err := subj.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}

	var hb bytes.Buffer
	if err := m.body.Execute(&hb, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", kind, err)
	}
	return sb.String(), hb.String(), nil
}
