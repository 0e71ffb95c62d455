package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"

	"enrollment-service/config"
	"enrollment-service/internal/models"
	"enrollment-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrMailerNotConfigured = errors.New("smtp is not configured")

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends transactional email over SMTP
type Mailer struct {
	cfg    config.SMTPConfig
	send   sendFunc
	logger *zap.Logger
}

// NewMailer creates a new SMTP mailer
func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: util.GetLogger(),
	}
}

// IsConfigured checks if SMTP credentials are present
func (m *Mailer) IsConfigured() bool {
	return m.cfg.Username != "" && m.cfg.Password != ""
}

// SendEnrollmentConfirmation emails the learner that their enrollment is
// active.
func (m *Mailer) SendEnrollmentConfirmation(ctx context.Context, event *models.EnrollmentCompletedEvent) error {
	if !m.IsConfigured() {
		return ErrMailerNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	to, err := mail.ParseAddress(event.UserEmail)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", event.UserEmail, err)
	}

	subject := fmt.Sprintf("Enrollment Confirmed: %s", event.CourseTitle)
	body, err := renderEnrollmentEmail(event)
	if err != nil {
		return err
	}

	msg := buildMessage(m.cfg.From, to.Address, subject, body)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	if err := m.send(addr, auth, m.cfg.From, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("failed to send enrollment email: %w", err)
	}

	m.logger.Info("Enrollment email sent",
		zap.String("enrollment_id", event.EnrollmentID),
		zap.String("to", event.UserEmail))
	return nil
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue folds line breaks away and Q-encodes anything outside
// printable ASCII.
func headerValue(v string) string {
	return mime.QEncoding.Encode("UTF-8", headerBreaks.Replace(v))
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", headerBreaks.Replace(from)))
	b.WriteString(fmt.Sprintf("To: %s\r\n", headerBreaks.Replace(to)))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", headerValue(subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

var enrollmentTemplate = template.Must(template.New("enrollment").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222; max-width: 600px; margin: 0 auto;">
  <h2>You're enrolled!</h2>
  <p>Hi {{.Name}},</p>
  <p>Your payment was received and your enrollment in <strong>{{.Course}}</strong> is confirmed.</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td>Enrollment ID</td><td>{{.Code}}</td></tr>
    <tr><td>Amount paid</td><td>{{.Amount}} {{.Currency}}</td></tr>
    {{if .Duration}}<tr><td>Duration</td><td>{{.Duration}}</td></tr>{{end}}
    <tr><td>Payment ID</td><td>{{.PaymentID}}</td></tr>
    <tr><td>Enrolled on</td><td>{{.EnrolledAt}}</td></tr>
  </table>
  <p>You can find the course in your dashboard.</p>
</body>
</html>`))

func renderEnrollmentEmail(event *models.EnrollmentCompletedEvent) (string, error) {
	name := event.UserName
	if name == "" {
		name = "Learner"
	}

	data := struct {
		Name, Course, Code, Amount, Currency, Duration, PaymentID, EnrolledAt string
	}{
		Name:       name,
		Course:     event.CourseTitle,
		Code:       event.EnrollmentCode,
		Amount:     decimal.NewFromFloat(event.Amount).StringFixed(2),
		Currency:   event.Currency,
		Duration:   event.CourseDuration,
		PaymentID:  event.PaymentID,
		EnrolledAt: event.EnrolledAt.Format("02 Jan 2006"),
	}

	var buf bytes.Buffer
	if err := enrollmentTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render enrollment email: %w", err)
	}
	return buf.String(), nil
}
