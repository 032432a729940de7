// internal/app/bot/browse.go
package bot

import (
	"context"
	"fmt"

	"github.com/dalemusser/groupvault/internal/app/query"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) cmdSearch(ctx context.Context, c chatCtx, keyword string) {
	if keyword == "" {
		b.reply(c, "Usage: /search <words>")
		return
	}
	b.browse(ctx, c, query.Params{GroupID: c.chatID, Keyword: keyword}, 0)
}

// browse runs one search and shows the page, editing msgID in place when
// set so "More" replaces the previous page.
func (b *Bot) browse(ctx context.Context, c chatCtx, p query.Params, msgID int) {
	page, err := b.query.Search(ctx, p)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}

	text := renderPage(p, page)
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range page.Items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(truncate(fileLabelOf(s), 30), fmt.Sprintf("g:%d", s.ID))))
	}
	if page.NextCursor != "" {
		next := p
		next.Cursor = page.NextCursor
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("More", "p:"+b.pager.put(next))))
	}

	var kb *tgbotapi.InlineKeyboardMarkup
	if len(rows) > 0 {
		m := tgbotapi.NewInlineKeyboardMarkup(rows...)
		kb = &m
	}
	if msgID != 0 {
		b.edit(c.chatID, msgID, text, kb)
		return
	}
	b.replyMarkup(c, text, kb)
}
