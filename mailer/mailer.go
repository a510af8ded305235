package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"volunteerops/config"
	"volunteerops/logger"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	conf config.SMTP
	send SendFunc
}

func NewSMTPMailer(conf config.SMTP) *SMTPMailer {
	return &SMTPMailer{conf: conf, send: smtp.SendMail}
}

// Send delivers m. Without SMTP settings (dev mode) the message is only logged.
func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	if !s.conf.Configured() {
		logger.GetLogger(ctx).WithFields(logrus.Fields{
			"to":      m.To,
			"subject": m.Subject,
		}).Info("[DEV] smtp not configured, mail not sent")
		return nil
	}
	from := s.conf.From
	if from == "" {
		from = s.conf.Username
	}
	auth := smtp.PlainAuth("", s.conf.Username, s.conf.Password, s.conf.Host)
	msg := buildMIME(s.conf.AppName, from, m.To, m.Subject, m.HTML)
	if err := s.send(s.conf.Host+":"+s.conf.Port, auth, from, []string{m.To}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	return nil
}

func buildMIME(fromName, fromAddr, to, subject, html string) string {
	headers := []string{
		fmt.Sprintf("From: %s <%s>", fromName, fromAddr),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + html
}
