package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"os"

	"github.com/aurumpay/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EmailNotifier delivers step-up verification codes over SMTP. It looks
// up the actor's email address at send time so a changed address takes
// effect immediately.
type EmailNotifier struct {
	db           *gorm.DB
	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(db *gorm.DB) *EmailNotifier {
	return &EmailNotifier{
		db:           db,
		smtpHost:     os.Getenv("SMTP_HOST"),
		smtpPort:     os.Getenv("SMTP_PORT"),
		smtpUsername: os.Getenv("SMTP_USERNAME"),
		smtpPassword: os.Getenv("SMTP_PASSWORD"),
		fromEmail:    os.Getenv("FROM_EMAIL"),
	}
}

// SendCode sends a one-time verification code to the actor's email
func (n *EmailNotifier) SendCode(ctx context.Context, actorID uuid.UUID, code string) error {
	var user models.User
	if err := n.db.WithContext(ctx).First(&user, "id = ?", actorID).Error; err != nil {
		return fmt.Errorf("error finding actor for code delivery: %w", err)
	}

	subject := "Your AurumPay Verification Code"
	body := fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<body>
		<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
			<h2>Hello %s,</h2>
			<p>Your one-time verification code for this sensitive operation is:</p>
			<p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
			<p>This code expires shortly and can be used only once.</p>
			<p>If you did not request this code, contact support immediately.</p>
			<p>Best regards,<br>The AurumPay Team</p>
		</div>
	</body>
	</html>
	`, user.FirstName, code)

	return n.sendEmail(user.Email, subject, body)
}

// sendEmail sends an email with HTML content
func (n *EmailNotifier) sendEmail(toEmail, subject, htmlBody string) error {
	if n.smtpHost == "" || n.smtpPort == "" || n.smtpUsername == "" || n.smtpPassword == "" {
		log.Println("Email service not configured properly. Check environment variables.")
		return fmt.Errorf("email service not configured")
	}

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	from := fmt.Sprintf("From: AurumPay <%s>\n", n.fromEmail)
	to := fmt.Sprintf("To: %s\n", toEmail)
	subjectLine := fmt.Sprintf("Subject: %s\n", subject)

	message := []byte(from + to + subjectLine + mime + htmlBody)

	auth := smtp.PlainAuth("", n.smtpUsername, n.smtpPassword, n.smtpHost)
	addr := fmt.Sprintf("%s:%s", n.smtpHost, n.smtpPort)

	if err := smtp.SendMail(addr, auth, n.fromEmail, []string{toEmail}, message); err != nil {
		log.Printf("Error sending email: %v", err)
		return err
	}

	return nil
}
