// internal/app/bot/callbacks.go
package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/dalemusser/groupvault/internal/app/query"
)

// Button data formats:
//
//	u:<action>[:<id>]  upload workflow step
//	f:c:<id>, f:t:<id> browse by category or tag
//	p:<key>            next page of a search
//	g:<id>             send a file
func (b *Bot) onCallback(ctx context.Context, u Update) {
	q := u.CallbackQuery
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		b.answer(q.ID, "")
		return
	}
	c := chatCtx{
		u:        u,
		chatID:   q.Message.Chat.ID,
		userID:   q.From.ID,
		threadID: u.ThreadID,
		msgID:    q.Message.MessageID,
		name:     displayName(q.From),
		group:    q.Message.Chat.IsGroup() || q.Message.Chat.IsSuperGroup(),
	}

	kind, rest, _ := strings.Cut(q.Data, ":")
	switch kind {
	case "u":
		wf, note, err := b.onUploadButton(ctx, c, rest)
		if err != nil {
			b.answer(q.ID, b.failure(err))
			return
		}
		b.answer(q.ID, note)
		if wf.State.Terminal() && note != "" {
			b.edit(c.chatID, c.msgID, note, nil)
			return
		}
		b.prompt(ctx, c, wf, c.msgID)

	case "f":
		b.answer(q.ID, "")
		field, arg, _ := strings.Cut(rest, ":")
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return
		}
		p := query.Params{GroupID: c.chatID}
		switch field {
		case "c":
			p.CategoryID = &id
		case "t":
			p.TagID = &id
		default:
			return
		}
		b.browse(ctx, c, p, 0)

	case "p":
		p, ok := b.pager.get(rest)
		if !ok || p.GroupID != c.chatID {
			b.answer(q.ID, "This list expired. Search again.")
			return
		}
		b.answer(q.ID, "")
		b.browse(ctx, c, p, c.msgID)

	case "g":
		b.answer(q.ID, "")
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return
		}
		b.sendResource(ctx, c, id)

	default:
		b.answer(q.ID, "")
	}
}
