package telegram

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"telegram-quiz-bot/internal/app"
)

// The telebot client carries its own timeouts, so the messenger methods
// take but do not thread the context.

func (b *Bot) SendQuestion(_ context.Context, chatID int64, text string, buttons []app.Button) (int, error) {
	msg, err := b.bot.Send(tele.ChatID(chatID), text, markup(buttons))
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (b *Bot) EditQuestion(_ context.Context, chatID int64, messageID int, text string, buttons []app.Button) error {
	_, err := b.bot.Edit(storedMessage(chatID, messageID), text, markup(buttons))
	return err
}

func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	_, err := b.bot.Send(tele.ChatID(chatID), text, tele.ModeMarkdown)
	return err
}

func (b *Bot) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	_, err := b.bot.Edit(storedMessage(chatID, messageID), text, tele.ModeMarkdown)
	return err
}

func (b *Bot) ResolveDisplayName(_ context.Context, userID int64) (string, error) {
	chat, err := b.bot.ChatByID(userID)
	if err != nil {
		return "", err
	}
	if chat.FirstName != "" {
		return chat.FirstName, nil
	}
	return chat.Title, nil
}

func markup(buttons []app.Button) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(buttons))
	for _, button := range buttons {
		rows = append(rows, []tele.InlineButton{{Text: button.Text, Data: button.Data}})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func storedMessage(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}
