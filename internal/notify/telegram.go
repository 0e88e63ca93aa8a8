package notify

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/models"
)

// Telegram pushes signal lifecycle events to a chat. Delivery failures are
// logged and swallowed so notification trouble never stalls the engine.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram creates a notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	logger := log.With().Str("component", "notify").Logger()
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// SignalEmitted announces a freshly fused signal.
func (t *Telegram) SignalEmitted(sig *models.Signal) {
	arrow := "🟢⬆️"
	if sig.Action == models.ActionSell {
		arrow = "🔴⬇️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %.0f%%\n", arrow, sig.Action, sig.Confidence)
	fmt.Fprintf(&b, "Expiry: %d min | Regime: %s\n", sig.Duration, sig.Regime)
	fmt.Fprintf(&b, "Entry: %.5f | %s\n", sig.EntryPrice,
		time.UnixMilli(sig.Timestamp).UTC().Format("15:04:05 MST"))
	if sig.IsFallback {
		b.WriteString("_fallback signal_\n")
	}
	for i, reason := range sig.Reasons {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "• %s\n", reason)
	}

	t.send(b.String())
}

// SignalResolved announces the outcome of an expired signal.
func (t *Telegram) SignalResolved(sig *models.Signal) {
	mark := "✅ WIN"
	if sig.Result == models.ResultLoss {
		mark = "❌ LOSS"
	}
	t.send(fmt.Sprintf("%s — %s %.0f%% (%s)", mark, sig.Action, sig.Confidence, sig.Regime))
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Msg("failed to send telegram message")
	}
}

// Nop is a no-op notifier used when Telegram is not configured.
type Nop struct{}

func (Nop) SignalEmitted(*models.Signal)  {}
func (Nop) SignalResolved(*models.Signal) {}
