package services

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type EmailService interface {
	SendTaskAssignedEmail(email, name, taskTitle string) error
	SendInvoiceIssuedEmail(email, clientName, invoiceNumber string, totalAmount float64) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
	}
}

func (s *emailService) SendTaskAssignedEmail(email, name, taskTitle string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "New task assigned to you")

	body := fmt.Sprintf(`
		<h3>Hi %s,</h3>
		<p>You have been assigned a new task: <strong>%s</strong>.</p>
		<p>Log in to see the details and due date.</p>
	`, name, taskTitle)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send assignment email: %w", err)
	}
	return nil
}

func (s *emailService) SendInvoiceIssuedEmail(email, clientName, invoiceNumber string, totalAmount float64) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", fmt.Sprintf("Invoice %s issued", invoiceNumber))

	body := fmt.Sprintf(`
		<h3>Dear %s,</h3>
		<p>Invoice <strong>%s</strong> has been issued for a total of <strong>%.2f</strong>.</p>
		<p>The detailed invoice document is available on request.</p>
	`, clientName, invoiceNumber, totalAmount)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send invoice email: %w", err)
	}
	return nil
}
