package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"biliticket/invitehub/internal/model"
)

// Notifier reports exhausted codes to operators. Delivery is best-effort:
// failures are logged, never returned.
type Notifier interface {
	NotifyExhausted(ctx context.Context, code *model.InviteCode)
}

type exhaustedNotifier struct {
	settings SettingsProvider
	mail     MailSender
	chat     ChatSender
	siteName string
	delay    time.Duration
	logger   *zap.Logger
}

// NewNotifier delivers through mail and/or chat; either may be nil.
// delay is the grace period quoted in the message.
func NewNotifier(settings SettingsProvider, mail MailSender, chat ChatSender, siteName string, delay time.Duration, logger *zap.Logger) Notifier {
	return &exhaustedNotifier{
		settings: settings,
		mail:     mail,
		chat:     chat,
		siteName: siteName,
		delay:    delay,
		logger:   logger,
	}
}

func (n *exhaustedNotifier) NotifyExhausted(ctx context.Context, code *model.InviteCode) {
	cfg, err := n.settings.Current(ctx)
	if err != nil {
		n.logger.Warn("skip exhausted notification: settings unavailable", zap.Error(err))
		return
	}
	if !cfg.NotifyExhausted {
		return
	}

	subject, body := exhaustedMessage(n.siteName, code, n.delay)
	log := n.logger.With(zap.String("code_id", code.ID.String()))

	if n.mail != nil && strings.TrimSpace(cfg.NotificationEmail) != "" {
		if err := n.mail.Send(ctx, cfg.NotificationEmail, subject, body); err != nil {
			log.Warn("send exhausted notification email", zap.Error(err))
		}
	}
	if n.chat != nil {
		if err := n.chat.Broadcast(ctx, subject+"\n\n"+body); err != nil {
			log.Warn("send exhausted notification chat", zap.Error(err))
		}
	}
}

func exhaustedMessage(siteName string, code *model.InviteCode, delay time.Duration) (subject, body string) {
	subject = fmt.Sprintf("[%s] Invite Code Exhausted", siteName)
	body = fmt.Sprintf(`An invite code has been fully used and will be deleted in %s.

Code Details:
- Total Uses: %d
- Role: %s
- Created: %s
`, humanDuration(delay), code.TotalUses, code.Role, code.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	return subject, body
}

func humanDuration(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", d/time.Hour)
	}
	return d.String()
}
