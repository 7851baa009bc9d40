package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
)

// handleBotCommand checks if the message is a known bot command and handles
// it locally, without reaching the agent loop. /start and /reset still
// publish to the bus since session setup/reset happens there.
func (c *Channel) handleBotCommand(ctx context.Context, message *telego.Message, isGroup bool, senderID string) bool {
	text := message.Text
	if text == "" || text[0] != '/' {
		return false
	}
	cmd := strings.ToLower(strings.SplitN(strings.SplitN(text, " ", 2)[0], "@", 2)[0])
	chatID := message.Chat.ID
	chatIDStr := fmt.Sprintf("%d", chatID)

	reply := func(text string) {
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
			return
		}
	}

	switch cmd {
	case "/start":
		return false
	case "/help":
		reply("Available commands:\n" +
			"/start — start chatting\n" +
			"/help — show this message\n" +
			"/reset — reset conversation history\n" +
			"/status — show bot status\n" +
			"\nJust send a message to chat with the agent.")
		return true
	case "/reset":
		c.PublishInbound(bus.InboundMessage{
			Channel:  c.Name(),
			SenderID: senderID,
			ChatID:   chatIDStr,
			Content:  "/reset",
			PeerKind: peerKindOf(isGroup),
			Metadata: map[string]string{"command": "reset"},
		})
		reply("Conversation history has been reset.")
		return true
	case "/status":
		reply(fmt.Sprintf("Running. Bot: @%s", c.bot.Username()))
		return true
	}
	return false
}

// SyncMenuCommands registers bot commands with Telegram via setMyCommands.
func (c *Channel) SyncMenuCommands(ctx context.Context, commands []telego.BotCommand) error {
	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands})
}

// DefaultMenuCommands returns the default bot menu commands.
func DefaultMenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "start", Description: "Start chatting with the bot"},
		{Command: "help", Description: "Show available commands"},
		{Command: "reset", Description: "Reset conversation history"},
		{Command: "status", Description: "Show bot status"},
	}
}
