package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
)

// handleMessage processes an incoming Telegram update.
func (c *Channel) handleMessage(ctx context.Context, update telego.Update) {
	message := update.Message
	if message == nil || isServiceMessage(message) {
		return
	}
	user := message.From
	if user == nil {
		return
	}

	userID := fmt.Sprintf("%d", user.ID)
	senderID := userID
	if user.Username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, user.Username)
	}
	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"

	if c.handleBotCommand(ctx, message, isGroup, senderID) {
		return
	}

	if !c.CheckPolicy(peerKindOf(isGroup), c.config.DMPolicy, c.config.GroupPolicy, senderID) {
		slog.Debug("telegram message rejected by policy", "sender", senderID, "is_group", isGroup)
		return
	}

	chatID := message.Chat.ID
	chatIDStr := fmt.Sprintf("%d", chatID)
	localKey := chatIDStr

	content := message.Text
	if message.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += message.Caption
	}

	mediaList := c.resolveMedia(ctx, message)
	var mediaPaths []string
	var extra string
	for _, m := range mediaList {
		if m.Type == "document" && m.FileName != "" && m.FilePath != "" {
			docContent, err := extractDocumentContent(m.FilePath, m.FileName)
			if err != nil {
				slog.Warn("document extraction failed", "file", m.FileName, "error", err)
			} else if docContent != "" {
				extra += "\n\n" + docContent
			}
		}
		if m.FilePath != "" {
			mediaPaths = append(mediaPaths, m.FilePath)
		}
	}
	if tags := buildMediaTags(mediaList); tags != "" {
		if content != "" {
			content = tags + "\n\n" + content
		} else {
			content = tags
		}
	}
	content += extra

	if content == "" {
		content = "[empty message]"
	}

	senderLabel := user.FirstName
	if user.Username != "" {
		senderLabel = "@" + user.Username
	}

	if isGroup && c.requireMention {
		wasMentioned := detectMention(message, c.bot.Username())
		if !wasMentioned {
			c.groupHistory.Record(localKey, channels.HistoryEntry{
				Sender:    senderLabel,
				Body:      content,
				Timestamp: time.Unix(int64(message.Date), 0),
				MessageID: fmt.Sprintf("%d", message.MessageID),
			}, c.historyLimit)
			return
		}
	}

	finalContent := content
	if isGroup {
		annotated := fmt.Sprintf("[From: %s]\n%s", senderLabel, content)
		finalContent = c.groupHistory.BuildContext(localKey, annotated, c.historyLimit)
	}

	c.sendTyping(ctx, localKey, chatID)

	c.PublishInbound(bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: senderID,
		ChatID:   chatIDStr,
		Content:  finalContent,
		Media:    mediaPaths,
		PeerKind: peerKindOf(isGroup),
		Metadata: map[string]string{
			"message_id": fmt.Sprintf("%d", message.MessageID),
			"username":   user.Username,
			"first_name": user.FirstName,
		},
	})

	if isGroup {
		c.groupHistory.Clear(localKey)
	}
}

func peerKindOf(isGroup bool) string {
	if isGroup {
		return "group"
	}
	return "direct"
}

// PublishInbound exposes the base channel's bus so handlers can publish
// without reaching into BaseChannel directly.
func (c *Channel) PublishInbound(msg bus.InboundMessage) {
	c.Bus().PublishInbound(msg)
}

// sendTyping sends a single typing indicator; Telegram typing expires after
// ~5s so there is no keepalive loop here, matching the gateway's short,
// single round-trip turns.
func (c *Channel) sendTyping(ctx context.Context, localKey string, chatID int64) {
	action := tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)
	if err := c.bot.SendChatAction(ctx, action); err != nil {
		slog.Debug("telegram: send chat action failed", "error", err)
	}
}
