package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starlingpost/starlingpost/internal/domain/social"
)

type captureSender struct {
	to, subject, html, text string
	calls                   int
}

func (c *captureSender) Send(to, subject, html, text string) error {
	c.calls++
	c.to, c.subject, c.html, c.text = to, subject, html, text
	return nil
}

func TestRelinkNotifier_SendsToContactEmail(t *testing.T) {
	cs := &captureSender{}
	n := NewRelinkNotifier(cs, "https://app.starlingpost.test/accounts")

	err := n.NotifyRelink(context.Background(), social.LinkedAccount{
		UserID: "u1", Platform: social.Instagram, AccountID: "17841", AccountName: "<b>shop</b>",
		ContactEmail: "owner@example.com", AccessToken: "secret-token",
	})
	require.NoError(t, err)
	require.Equal(t, 1, cs.calls)
	require.Equal(t, "owner@example.com", cs.to)
	require.Equal(t, "Reconnect your instagram account", cs.subject)
	require.Contains(t, cs.text, "https://app.starlingpost.test/accounts?relink=instagram")
	require.Contains(t, cs.html, "&lt;b&gt;shop&lt;/b&gt;")
	require.NotContains(t, cs.text+cs.html, "secret-token")
}

func TestRelinkNotifier_NoRecipient(t *testing.T) {
	cs := &captureSender{}
	err := NewRelinkNotifier(cs, "").NotifyRelink(context.Background(), social.LinkedAccount{Platform: social.YouTube})
	require.ErrorIs(t, err, ErrNoRecipient)
	require.Zero(t, cs.calls)
}

func TestSMTPSender_Message(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.test", From: "noreply@starlingpost.test"})
	require.Equal(t, 587, s.cfg.Port)
	require.Equal(t, "auto", s.cfg.TLSMode)

	m := s.message("a@b.test", "hi", "<p>x</p>", "x")
	require.Equal(t, []string{"a@b.test"}, m.GetHeader("To"))
	require.Equal(t, []string{"noreply@starlingpost.test"}, m.GetHeader("From"))

	d := NewSMTPSender(SMTPConfig{Host: "smtp.test", Port: 465, TLSMode: "ssl"}).dialer()
	require.True(t, d.SSL)
}
