package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"volunteerops/config"
	"volunteerops/db"
	"volunteerops/models"
)

type fakeMailer struct {
	sent   []Message
	failTo map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, m Message) error {
	if f.failTo[m.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, m)
	return nil
}

func setupRepo(t *testing.T) *db.Repo {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(conn))
	return db.NewRepo(conn)
}

func TestSMTPMailer_DevModeDoesNotSend(t *testing.T) {
	m := NewSMTPMailer(config.SMTP{})
	called := false
	m.send = func(string, smtp.Auth, string, []string, []byte) error { called = true; return nil }

	require.NoError(t, m.Send(context.Background(), Message{To: "a@example.org", Subject: "x"}))
	assert.False(t, called)
}

func TestSMTPMailer_BuildsMessage(t *testing.T) {
	m := NewSMTPMailer(config.SMTP{Host: "smtp.example.org", Port: "587", Username: "bot@example.org", AppName: "VolunteerOps"})
	var gotAddr, gotFrom string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotMsg = addr, from, msg
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Message{To: "a@example.org", Subject: "Shift reminder", HTML: "<p>hi</p>"}))
	assert.Equal(t, "smtp.example.org:587", gotAddr)
	assert.Equal(t, "bot@example.org", gotFrom)
	assert.Contains(t, string(gotMsg), "From: VolunteerOps <bot@example.org>")
	assert.Contains(t, string(gotMsg), "Subject: Shift reminder")
	assert.True(t, strings.HasSuffix(string(gotMsg), "<p>hi</p>"))
}

func TestLoggingMailer_RecordsOutcomeAndResend(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	fake := &fakeMailer{failTo: map[string]bool{"b@example.org": true}}
	lm := NewLoggingMailer(fake, repo)

	require.NoError(t, lm.Send(ctx, Message{To: "a@example.org", Subject: "ok"}))
	require.Error(t, lm.Send(ctx, Message{To: "b@example.org", Subject: "bounce"}))

	failed, err := repo.ListEmailLogs(ctx, db.EmailLogQuery{Status: models.EmailFailed})
	require.NoError(t, err)
	require.Len(t, failed.Logs, 1)
	assert.Equal(t, "mailbox unavailable", failed.Logs[0].Error)

	fake.failTo = nil
	require.NoError(t, lm.Resend(ctx, failed.Logs[0].ID))
	got, err := repo.FindEmailLog(ctx, failed.Logs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailSent, got.Status)
	assert.Equal(t, 2, got.Attempts)
}

func TestNewsletterSender_ThrottlesAndCounts(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	for _, u := range []string{"a@example.org", "b@example.org", "c@example.org"} {
		require.NoError(t, repo.CreateUser(ctx, &models.User{Username: u, DisplayName: u}))
	}
	nl := &models.Newsletter{Subject: "News", Body: "<p>hello</p>"}
	require.NoError(t, repo.CreateNewsletter(ctx, nl))

	fake := &fakeMailer{failTo: map[string]bool{"c@example.org": true}}
	sender := NewNewsletterSender(NewLoggingMailer(fake, repo), repo, 2*time.Second)
	var slept []time.Duration
	sender.Sleep = func(d time.Duration) { slept = append(slept, d) }

	res, err := sender.Send(ctx, nl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)

	got, err := repo.FindNewsletter(ctx, nl.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NewsletterSent, got.Status)
	assert.Equal(t, 2, got.SentCount)

	_, err = sender.Send(ctx, nl.ID)
	assert.ErrorIs(t, err, db.ErrInvalidState)
}

func TestNewsletterSender_ReleasesClaimWhenRecipientsFail(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	nl := &models.Newsletter{Subject: "News", Body: "<p>hello</p>"}
	require.NoError(t, repo.CreateNewsletter(ctx, nl))

	// recipient lookup fails after the claim succeeded
	require.NoError(t, repo.DB.Exec("ALTER TABLE users RENAME TO users_away").Error)
	fake := &fakeMailer{}
	sender := NewNewsletterSender(NewLoggingMailer(fake, repo), repo, 0)
	_, err := sender.Send(ctx, nl.ID)
	require.Error(t, err)

	got, err := repo.FindNewsletter(ctx, nl.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NewsletterDraft, got.Status)
	assert.Empty(t, fake.sent)

	// the draft can be sent once recipients load again
	require.NoError(t, repo.DB.Exec("ALTER TABLE users_away RENAME TO users").Error)
	require.NoError(t, repo.CreateUser(ctx, &models.User{Username: "a@example.org", DisplayName: "a"}))
	res, err := sender.Send(ctx, nl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}
