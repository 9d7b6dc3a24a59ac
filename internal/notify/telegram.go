// Package notify delivers outbox events to a human operator over Telegram.
// It is the one concrete, non-blocking outbox consumer this system ships
// with: everything else downstream of the outbox (an external bus, an
// audit log) is out of scope. Fire-and-forget only — it never two-way
// controls the trading process.
package notify

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/lumenquant/tradingcore/internal/outbox"
)

// eventsOfInterest is the subset of outbox event types this consumer
// forwards to the operator channel; everything else is ignored.
var eventsOfInterest = map[string]bool{
	"KillSwitchTriggered": true,
	"OrderRejected":       true,
	"OutboxEventPoisoned":  true,
}

// TelegramNotifier sends a short message per event of interest. It never
// returns an error from Notify: a delivery failure is logged and
// swallowed so it can never stall the outbox publisher.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier builds a notifier from a bot token and chat ID, both
// read directly from the environment by the caller.
func NewTelegramNotifier(token, chatIDStr string) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatIDStr, err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("🔔 telegram notifier connected")
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

// Notify implements outbox.Publisher: it is wired directly into the outbox
// worker's publish callback.
func (t *TelegramNotifier) Notify(event outbox.Event) error {
	if !eventsOfInterest[event.EventType] {
		return nil
	}

	text := fmt.Sprintf("⚠️ %s\naggregate: %s\npayload: %s", event.EventType, event.AggregateID, event.Payload)
	msg := tgbotapi.NewMessage(t.chatID, text)

	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Str("event_type", event.EventType).Msg("❌ failed to deliver telegram notification")
	}
	return nil
}
