// Package notify delivers crew results to users over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
)

// MaxMessageLength is Telegram's limit on message text, in characters.
const MaxMessageLength = 4096

const truncationMarker = "\n…"

// ErrNotRegistered is returned when a profile has no registered Telegram user.
var ErrNotRegistered = errors.New("telegram user not registered")

// Sender sends a message. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Users looks up Telegram users.
type Users interface {
	GetTelegramUserByProfile(ctx context.Context, profileID string) (store.TelegramUser, error)
	GetAllRegisteredTelegramUsers(ctx context.Context) ([]store.TelegramUser, error)
}

// Observer is told about every delivery attempt.
type Observer interface {
	ObserveNotification(success bool)
}

// TelegramNotifier sends plain-text messages to registered users.
type TelegramNotifier struct {
	sender   Sender
	users    Users
	observer Observer
	logger   zerolog.Logger
}

// NewBotAPI authenticates a bot token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return api, nil
}

// NewTelegramNotifier creates a notifier. observer may be nil.
func NewTelegramNotifier(sender Sender, users Users, observer Observer, logger zerolog.Logger) (*TelegramNotifier, error) {
	if sender == nil {
		return nil, fmt.Errorf("invalid config: telegram sender is required")
	}
	if users == nil {
		return nil, fmt.Errorf("invalid config: telegram users are required")
	}
	return &TelegramNotifier{
		sender:   sender,
		users:    users,
		observer: observer,
		logger:   logger.With().Str("component", "notify").Logger(),
	}, nil
}

// NotifyProfile sends text to the Telegram user linked to profileID.
// Unregistered users yield ErrNotRegistered and nothing is sent.
func (n *TelegramNotifier) NotifyProfile(ctx context.Context, profileID, text string) error {
	user, err := n.users.GetTelegramUserByProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: profile %s", ErrNotRegistered, profileID)
		}
		return err
	}
	if !user.IsRegistered {
		return fmt.Errorf("%w: profile %s", ErrNotRegistered, profileID)
	}
	return n.send(user, text)
}

// Broadcast sends text to every registered user and returns how many
// deliveries succeeded. Individual failures are logged, not returned.
func (n *TelegramNotifier) Broadcast(ctx context.Context, text string) (int, error) {
	users, err := n.users.GetAllRegisteredTelegramUsers(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := n.send(u, text); err != nil {
			continue
		}
		sent++
	}
	return sent, nil
}

func (n *TelegramNotifier) send(user store.TelegramUser, text string) error {
	chatID, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram user id %q: %w", user.ID, err)
	}

	msg := tgbotapi.NewMessage(chatID, Truncate(text, MaxMessageLength))
	msg.DisableWebPagePreview = true

	_, err = n.sender.Send(msg)
	if n.observer != nil {
		n.observer.ObserveNotification(err == nil)
	}
	if err != nil {
		n.logger.Error().Err(err).Str("telegram_user_id", user.ID).Msg("Failed to send Telegram message")
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	n.logger.Debug().Str("telegram_user_id", user.ID).Msg("Telegram message sent")
	return nil
}

// Truncate shortens s to at most limit characters, marking the cut.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + truncationMarker
}
