package mailer

import (
	"context"

	"volunteerops/db"
	"volunteerops/logger"
	"volunteerops/models"
)

// LoggingMailer records every delivery attempt in the email log.
type LoggingMailer struct {
	Next Mailer
	Repo *db.Repo
}

func NewLoggingMailer(next Mailer, repo *db.Repo) *LoggingMailer {
	return &LoggingMailer{Next: next, Repo: repo}
}

func (l *LoggingMailer) Send(ctx context.Context, m Message) error {
	return l.deliver(ctx, m, nil)
}

func (l *LoggingMailer) deliver(ctx context.Context, m Message, newsletterID *string) error {
	sendErr := l.Next.Send(ctx, m)
	entry := &models.EmailLog{
		Recipient:    m.To,
		Subject:      m.Subject,
		Body:         m.HTML,
		Status:       models.EmailSent,
		NewsletterID: newsletterID,
	}
	if sendErr != nil {
		entry.Status = models.EmailFailed
		entry.Error = sendErr.Error()
	}
	if err := l.Repo.LogEmail(ctx, entry); err != nil {
		logger.GetLogger(ctx).WithError(err).Warn("write email log failed")
	}
	return sendErr
}

// Resend delivers a logged message again and updates the same row.
func (l *LoggingMailer) Resend(ctx context.Context, logID string) error {
	entry, err := l.Repo.FindEmailLog(ctx, logID)
	if err != nil {
		return err
	}
	sendErr := l.Next.Send(ctx, Message{To: entry.Recipient, Subject: entry.Subject, HTML: entry.Body})
	if err := l.Repo.MarkEmailRetried(ctx, entry.ID, sendErr); err != nil {
		return err
	}
	return sendErr
}
