package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Kind is the recognized bot command.
type Kind string

const (
	KindStart   Kind = "start"
	KindSummary Kind = "resumen"
	KindCompare Kind = "comparar"
	KindHelp    Kind = "help"
	KindUnknown Kind = "unknown"
)

var commandKinds = map[string]Kind{
	"start":    KindStart,
	"resumen":  KindSummary,
	"comparar": KindCompare,
	"help":     KindHelp,
	"ayuda":    KindHelp,
}

// ErrIgnored is returned for updates that carry no command, such as edits,
// plain text or service messages. The webhook acknowledges them silently.
var ErrIgnored = errors.New("update carries no command")

// Command is a slash command received through the webhook.
type Command struct {
	UpdateID  int
	Kind      Kind
	Name      string
	Args      string
	ChatID    int64
	UserID    int64
	FirstName string
}

// ParseUpdate decodes a webhook body. Commands are matched case-insensitively
// and a trailing @botname is dropped.
func ParseUpdate(body []byte) (Command, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return Command{}, fmt.Errorf("decode update: %w", err)
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return Command{}, ErrIgnored
	}

	name, args := splitCommand(msg)
	if name == "" {
		return Command{}, ErrIgnored
	}

	cmd := Command{
		UpdateID: update.UpdateID,
		Name:     name,
		Args:     args,
		ChatID:   msg.Chat.ID,
		Kind:     KindUnknown,
	}
	if k, ok := commandKinds[name]; ok {
		cmd.Kind = k
	}
	if msg.From != nil {
		cmd.UserID = msg.From.ID
		cmd.FirstName = msg.From.FirstName
	}
	return cmd, nil
}

func splitCommand(msg *tgbotapi.Message) (string, string) {
	if msg.IsCommand() {
		return strings.ToLower(msg.Command()), strings.TrimSpace(msg.CommandArguments())
	}
	// Clients that send no entities still get their slash commands handled.
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
}
