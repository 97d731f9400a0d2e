package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

const appName = "PaperPedia"

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
	ExpiresMinutes  int
}

// Mailer renders PaperPedia messages and hands them to a Sender.
type Mailer struct {
	sender Sender
}

func NewMailer(sender Sender) *Mailer {
	return &Mailer{sender: sender}
}

// SendVerification mails the account verification link. The message states
// how long the link stays valid, rounded up to whole minutes.
func (m *Mailer) SendVerification(ctx context.Context, to, userName, link string, validFor time.Duration) error {
	html, err := renderTemplate(verificationTemplate, VerificationData{
		AppName:         appName,
		UserName:        userName,
		VerificationURL: link,
		ExpiresMinutes:  Minutes(validFor),
	})
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	return m.sender.Send(ctx, to, "Verify your "+appName+" account", html)
}

// Minutes rounds d up to whole minutes, never below one.
func Minutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify your {{.AppName}} account</title>
    <style>
        body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; color: #222; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #7a1f1f; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #7a1f1f; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #7a1f1f; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Welcome, {{.UserName}}!</h2>

    <p>Confirm your email address to activate your account and start writing articles.</p>

    <p>
        <a href="{{.VerificationURL}}" class="button">Verify account</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.VerificationURL}}</p>

    <p>This link expires in {{.ExpiresMinutes}} minute{{if ne .ExpiresMinutes 1}}s{{end}}.</p>

    <div class="footer">
        <p>If you didn't sign up for {{.AppName}}, you can ignore this email.</p>
    </div>
</body>
</html>`))

func renderTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
