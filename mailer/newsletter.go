package mailer

import (
	"context"
	"time"

	"volunteerops/db"
	"volunteerops/logger"
)

// NewsletterSender mails a newsletter to every active user, one at a time,
// sleeping a fixed delay between messages.
type NewsletterSender struct {
	Mail  *LoggingMailer
	Repo  *db.Repo
	Delay time.Duration
	Sleep func(time.Duration)
}

func NewNewsletterSender(mail *LoggingMailer, repo *db.Repo, delay time.Duration) *NewsletterSender {
	return &NewsletterSender{Mail: mail, Repo: repo, Delay: delay, Sleep: time.Sleep}
}

type SendResult struct {
	Sent   int
	Failed int
}

func (n *NewsletterSender) Send(ctx context.Context, newsletterID string) (*SendResult, error) {
	nl, err := n.Repo.FindNewsletter(ctx, newsletterID)
	if err != nil {
		return nil, err
	}
	if err := n.Repo.ClaimNewsletter(ctx, nl.ID); err != nil {
		return nil, err
	}
	log := logger.GetLogger(ctx).WithField("newsletter_id", nl.ID)
	users, err := n.Repo.ListActiveRecipients(ctx)
	if err != nil {
		// 还没发出任何邮件，退回草稿以便重试
		if rerr := n.Repo.ReleaseNewsletter(context.Background(), nl.ID); rerr != nil {
			log.WithError(rerr).Error("release newsletter claim failed")
		}
		return nil, err
	}

	res := &SendResult{}
	for i, u := range users {
		if err := ctx.Err(); err != nil {
			break
		}
		if i > 0 && n.Delay > 0 {
			n.Sleep(n.Delay)
		}
		if err := n.Mail.deliver(ctx, Message{To: u.Username, Subject: nl.Subject, HTML: nl.Body}, &nl.ID); err != nil {
			log.WithError(err).Warnf("newsletter to %s failed", u.Username)
			res.Failed++
			continue
		}
		res.Sent++
	}
	// 计数写回用 background，避免请求取消后状态卡在 sending
	if err := n.Repo.FinishNewsletter(context.Background(), nl.ID, res.Sent, res.Failed); err != nil {
		return res, err
	}
	log.Infof("newsletter sent: %d ok, %d failed", res.Sent, res.Failed)
	return res, nil
}
