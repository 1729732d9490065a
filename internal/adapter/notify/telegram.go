package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/semmidev/backdrop/internal/domain"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	token    string
	endpoint string
	chatID   int64

	mu  sync.Mutex
	bot sender
}

// NewTelegram does not contact Telegram. The bot connects on the first
// Notify, so an unreachable API or a revoked token only costs the message.
func NewTelegram(botToken string, chatID int64, endpoint string) (*TelegramNotifier, error) {
	if botToken == "" {
		return nil, errors.New("bot token is required")
	}
	if chatID == 0 {
		return nil, errors.New("chat id is required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	return &TelegramNotifier{token: botToken, endpoint: endpoint, chatID: chatID}, nil
}

func (t *TelegramNotifier) sender() (sender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := t.sender()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, telegramText(event))
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func telegramText(event domain.Event) string {
	icon := map[string]string{
		domain.EventSuccess:  "✅",
		domain.EventDegraded: "⚠️",
		domain.EventFailure:  "❌",
	}[event.Status]

	var b strings.Builder
	fmt.Fprintf(&b, "%s Backup %s: %s\n", icon, event.Status, event.Producer)
	if event.Artifact != "" {
		fmt.Fprintf(&b, "\n📁 File: %s", event.Artifact)
	}
	fmt.Fprintf(&b, "\n☁️ Remote: %s", event.Remote)
	if len(event.Deleted) > 0 {
		fmt.Fprintf(&b, "\n🗑 Expired deleted: %s", strings.Join(event.Deleted, ", "))
	}
	if event.FailedDeletes > 0 {
		fmt.Fprintf(&b, "\n🗑 Failed deletes: %d", event.FailedDeletes)
	}
	for _, w := range event.Warnings {
		fmt.Fprintf(&b, "\n⚠️ %s", w)
	}
	if event.Error != "" {
		fmt.Fprintf(&b, "\n❗ %s", event.Error)
	}
	fmt.Fprintf(&b, "\n🕐 Took: %s", event.Duration)
	return b.String()
}
