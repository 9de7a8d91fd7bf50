// Package mailer sends the bookstore's transactional emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"bookstore/config"

	"github.com/dustin/go-humanize"
)

// Mailer is what the services need from an email transport.
type Mailer interface {
	SendConfirmation(ctx context.Context, to, userName, token string) error
	SendPasswordChangeCode(ctx context.Context, to, userName, token string) error
	SendPasswordChanged(ctx context.Context, to, userName string) error
	SendPaymentSuccess(ctx context.Context, to string, p PaymentReceipt) error
}

// PaymentReceipt is the data rendered into the payment confirmation.
type PaymentReceipt struct {
	UserName      string
	OrderID       int64
	Amount        int64
	PaymentMethod string
	TransactionID string
}

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"money": formatAmount,
}).Parse(`
{{define "confirmation"}}<p>Hello {{.UserName}},</p>
<p>Welcome to the Online Book Store. Please use the code below to confirm your email address.</p>
<h3 style="color: blue; font-weight: bold;">{{.Token}}</h3>
<p style="font-size: 15px; color: red;">N.B: Please don't reply to this email</p>{{end}}

{{define "password_code"}}<p>Hello <strong>{{.UserName}}</strong>,</p>
<p>We received a request to change your password.</p>
<p>Your verification code is: <strong>{{.Token}}</strong></p>
<p>This code will expire in 15 minutes.</p>
<p>If you did not request this, please ignore this email.</p>{{end}}

{{define "password_changed"}}<p>Hi <strong>{{.UserName}}</strong>,</p>
<p>Your password was successfully changed. If you didn't do this, please contact support immediately.</p>{{end}}

{{define "payment_success"}}<p>Hello <strong>{{.UserName}}</strong>,</p>
<p>You have successfully paid for your order.</p>
<ul>
  <li><strong>Order ID:</strong> {{.OrderID}}</li>
  <li><strong>Total amount:</strong> {{money .Amount}} VND</li>
  <li><strong>Payment method:</strong> {{.PaymentMethod}}</li>
  <li><strong>Transaction ID:</strong> {{.TransactionID}}</li>
</ul>
<p>Thank you for your purchase.</p>
<p style="font-size: 14px; color: red;">Please do not reply to this email.</p>{{end}}
`))

// formatAmount renders 25000 as 25.000
func formatAmount(amount int64) string {
	return strings.ReplaceAll(humanize.Comma(amount), ",", ".")
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers HTML mail with net/smtp.
type SMTPMailer struct {
	cfg  config.MailConfig
	send sendFunc
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendConfirmation(ctx context.Context, to, userName, token string) error {
	return m.deliver(ctx, to, "Confirm Your Email For Registration", "confirmation",
		map[string]string{"UserName": userName, "Token": token})
}

func (m *SMTPMailer) SendPasswordChangeCode(ctx context.Context, to, userName, token string) error {
	return m.deliver(ctx, to, "Password Change Request", "password_code",
		map[string]string{"UserName": userName, "Token": token})
}

func (m *SMTPMailer) SendPasswordChanged(ctx context.Context, to, userName string) error {
	return m.deliver(ctx, to, "Password Changed", "password_changed",
		map[string]string{"UserName": userName})
}

func (m *SMTPMailer) SendPaymentSuccess(ctx context.Context, to string, p PaymentReceipt) error {
	return m.deliver(ctx, to, "Payment Successfully", "payment_success", p)
}

func (m *SMTPMailer) deliver(ctx context.Context, to, subject, tmpl string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.Username == "" {
		return fmt.Errorf("mail: SMTP_USERNAME not configured")
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return fmt.Errorf("mail: render %s: %w", tmpl, err)
	}

	cc := recipients(m.cfg.CC)
	bcc := recipients(m.cfg.BCC)
	raw := buildMessage(m.cfg.From, to, cc, subject, body.String())

	all := append([]string{to}, cc...)
	all = append(all, bcc...)

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.send(addr, auth, m.cfg.From, all, raw); err != nil {
		return fmt.Errorf("mail: send %q to %s: %w", subject, to, err)
	}
	return nil
}

func recipients(raw string) []string {
	var out []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func buildMessage(from, to string, cc []string, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	if len(cc) > 0 {
		b.WriteString("Cc: " + strings.Join(cc, ", ") + "\r\n")
	}
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}
