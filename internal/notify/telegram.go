// Package notify sends operator alerts for engine events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/engine"
)

// ErrNoChat is returned when no chat id is configured.
var ErrNoChat = errors.New("telegram chat id required")

// TelegramOptions configures a Telegram notifier.
type TelegramOptions struct {
	Token       string
	ChatID      int64
	APIEndpoint string       // default tgbotapi.APIEndpoint
	Client      *http.Client // default 10s timeout
	Logger      logrus.FieldLogger
}

// Telegram posts alerts to one chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger logrus.FieldLogger
}

// NewTelegram connects to the bot API and verifies the token.
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if opts.ChatID == 0 {
		return nil, ErrNoChat
	}
	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	return &Telegram{
		bot:    bot,
		chatID: opts.ChatID,
		logger: logger.WithField("component", "telegram"),
	}, nil
}

// Send posts text to the configured chat.
func (t *Telegram) Send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Run forwards alert-worthy events until ctx is done or events is closed.
func (t *Telegram) Run(ctx context.Context, events <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			text, alert := Format(ev)
			if !alert {
				continue
			}
			if err := t.Send(text); err != nil {
				t.logger.WithError(err).WithField("event", ev.Type).Warn("alert not delivered")
			}
		}
	}
}

// Format renders an event as alert text. It reports false for events that
// do not warrant an alert.
func Format(ev engine.Event) (string, bool) {
	var b strings.Builder
	switch ev.Type {
	case engine.EventExecutionFailed:
		b.WriteString("❌ Execution failed")
		if req := ev.Execution; req != nil {
			fmt.Fprintf(&b, ": %s %s %.6g", req.Direction, req.Symbol, req.Amount)
			if req.Router != "" {
				fmt.Fprintf(&b, " via %s", req.Router)
			}
			if req.Error != "" {
				fmt.Fprintf(&b, "\n%s", req.Error)
			}
			if req.TxRef != "" {
				fmt.Fprintf(&b, "\ntx %s", req.TxRef)
			}
		}
	case engine.EventPositionClosed:
		fmt.Fprintf(&b, "🔚 Closed %s, realized PnL %+.4f", ev.Symbol, ev.RealizedPnL)
		if req := ev.Execution; req != nil && req.Reason != "" {
			fmt.Fprintf(&b, "\n%s", req.Reason)
		}
	case engine.EventPositionReduced:
		fmt.Fprintf(&b, "✂️ Reduced %s, realized PnL %+.4f", ev.Symbol, ev.RealizedPnL)
		if req := ev.Execution; req != nil {
			fmt.Fprintf(&b, " (%.0f%%)", req.ExitPercent)
			if req.Reason != "" {
				fmt.Fprintf(&b, "\n%s", req.Reason)
			}
		}
	case engine.EventEmergencyExit:
		b.WriteString("🚨 Emergency exit")
		if ev.Message != "" {
			fmt.Fprintf(&b, ": %s", ev.Message)
		}
	case engine.EventEngineStopped:
		b.WriteString("⏹ Engine stopped")
	default:
		return "", false
	}
	return b.String(), true
}
