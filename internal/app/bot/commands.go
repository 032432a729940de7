// internal/app/bot/commands.go
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dalemusser/groupvault/internal/app/groupinit"
	"github.com/dalemusser/groupvault/internal/app/transport"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// --- group setup and roles ---

func (b *Bot) cmdInit(ctx context.Context, c chatCtx, token string) {
	if token == "" {
		b.reply(c, "Usage: /init <token>")
		return
	}
	// The token should not stay visible in the chat whatever the outcome.
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(c.chatID, c.msgID)); err != nil {
		b.log.Debug("could not delete /init message", zap.Error(err))
	}

	outcome, err := b.issuer.Consume(ctx, c.chatID, c.userID, token)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	switch outcome {
	case groupinit.OutcomeOK:
		b.reply(c, fmt.Sprintf("%s is now the super admin of this group.", c.name))
	case groupinit.OutcomeAlreadyInitialized:
		b.reply(c, "This group is already set up.")
	default:
		b.reply(c, "That token is not valid.")
	}
}

func (b *Bot) cmdSetRole(ctx context.Context, c chatCtx, args string) {
	fields := strings.Fields(args)
	var target int64
	var roleArg string

	reply := c.u.Message.ReplyToMessage
	switch {
	case len(fields) == 1 && reply != nil && reply.From != nil:
		target, roleArg = reply.From.ID, fields[0]
	case len(fields) == 2:
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			b.reply(c, "Usage: /setrole <user id> <role>, or reply to the user with /setrole <role>")
			return
		}
		target, roleArg = id, fields[1]
	default:
		b.reply(c, "Usage: /setrole <user id> <role>, or reply to the user with /setrole <role>")
		return
	}

	role, err := models.ParseRole(roleArg)
	if err != nil {
		b.reply(c, b.failure(fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)))
		return
	}
	if err := b.roles.SetRole(ctx, c.userID, c.chatID, target, role); err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, fmt.Sprintf("User %d is now %s.", target, role))
}

func (b *Bot) cmdRoles(ctx context.Context, c chatCtx) {
	entries, err := b.roles.List(ctx, c.chatID)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	if len(entries) == 0 {
		b.reply(c, "No roles assigned yet. A super admin claims the group with /init.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Roles:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%d: %s\n", e.UserID, e.Role)
	}
	b.reply(c, sb.String())
}

// --- categories and tags ---

func (b *Bot) cmdCategories(ctx context.Context, c chatCtx) {
	cats, err := b.query.ListCategories(ctx, c.chatID)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	if len(cats) == 0 {
		b.reply(c, "No categories yet. Admins add them with /add_category <name>.")
		return
	}
	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	sb.WriteString("Categories:\n")
	for _, cat := range cats {
		fmt.Fprintf(&sb, "#%d %s", cat.ID, cat.Name)
		if cat.Description != "" {
			fmt.Fprintf(&sb, " (%s)", cat.Description)
		}
		sb.WriteByte('\n')
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cat.Name, fmt.Sprintf("f:c:%d", cat.ID))))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.replyMarkup(c, sb.String(), &kb)
}

func (b *Bot) cmdTags(ctx context.Context, c chatCtx) {
	tags, err := b.query.ListTags(ctx, c.chatID)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	if len(tags) == 0 {
		b.reply(c, "No tags yet. Add one with /add_tag <name>.")
		return
	}
	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	sb.WriteString("Tags:\n")
	for _, tg := range tags {
		fmt.Fprintf(&sb, "#%d %s\n", tg.ID, tg.Name)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("#"+tg.Name, fmt.Sprintf("f:t:%d", tg.ID))))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.replyMarkup(c, sb.String(), &kb)
}

func (b *Bot) cmdAddCategory(ctx context.Context, c chatCtx, args string) {
	name, desc, _ := strings.Cut(args, "|")
	cat, err := b.catalog.CreateCategory(ctx, c.chatID, c.userID, name, strings.TrimSpace(desc))
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, fmt.Sprintf("Category #%d %s created.", cat.ID, cat.Name))
}

func (b *Bot) cmdRenameCategory(ctx context.Context, c chatCtx, args string) {
	id, name, ok := idAndRest(args)
	if !ok {
		b.reply(c, "Usage: /rename_category <id> <new name>")
		return
	}
	if err := b.catalog.RenameCategory(ctx, c.chatID, c.userID, id, name); err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, "Category renamed.")
}

func (b *Bot) cmdDeleteCategory(ctx context.Context, c chatCtx, args string) {
	id, _, ok := idAndRest(args)
	if !ok {
		b.reply(c, "Usage: /delete_category <id>")
		return
	}
	if err := b.catalog.DeleteCategory(ctx, c.chatID, c.userID, id); err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, "Category deleted.")
}

func (b *Bot) cmdAddTag(ctx context.Context, c chatCtx, args string) {
	tg, err := b.catalog.CreateTag(ctx, c.chatID, c.userID, args)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, fmt.Sprintf("Tag #%d %s created.", tg.ID, tg.Name))
}

func (b *Bot) cmdRenameTag(ctx context.Context, c chatCtx, args string) {
	id, name, ok := idAndRest(args)
	if !ok {
		b.reply(c, "Usage: /rename_tag <id> <new name>")
		return
	}
	if err := b.catalog.RenameTag(ctx, c.chatID, c.userID, id, name); err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, "Tag renamed.")
}

func (b *Bot) cmdDeleteTag(ctx context.Context, c chatCtx, args string) {
	id, _, ok := idAndRest(args)
	if !ok {
		b.reply(c, "Usage: /delete_tag <id>")
		return
	}
	if err := b.catalog.DeleteTag(ctx, c.chatID, c.userID, id); err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, "Tag deleted and removed from every file.")
}

// idAndRest splits "12 some text" into 12 and "some text". A leading '#'
// on the id is accepted since lists print ids that way.
func idAndRest(args string) (int64, string, bool) {
	head, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	id, err := strconv.ParseInt(strings.TrimPrefix(head, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, strings.TrimSpace(rest), true
}

// --- per-resource commands ---

func (b *Bot) onResourceCommand(ctx context.Context, c chatCtx, name string, id int64, args string) {
	switch name {
	case "get":
		b.sendResource(ctx, c, id)
	case "delete":
		if err := b.delivery.Delete(ctx, c.chatID, id, c.userID); err != nil {
			b.reply(c, b.failure(err))
			return
		}
		b.reply(c, fmt.Sprintf("File %d deleted.", id))
	case "history":
		b.cmdHistory(ctx, c, id)
	case "describe":
		b.editDone(c, b.catalog.EditDescription(ctx, c.chatID, c.userID, id, args))
	case "move":
		b.editDone(c, b.moveResource(ctx, c, id, args))
	case "tag", "untag":
		if args == "" {
			b.reply(c, fmt.Sprintf("Usage: /%s_%d <tag name>", name, id))
			return
		}
		tg, err := b.catalog.FindTag(ctx, c.chatID, args)
		if err != nil {
			b.reply(c, b.failure(err))
			return
		}
		if name == "tag" {
			err = b.catalog.AddResourceTag(ctx, c.chatID, c.userID, id, tg.ID)
		} else {
			err = b.catalog.RemoveResourceTag(ctx, c.chatID, c.userID, id, tg.ID)
		}
		b.editDone(c, err)
	}
}

func (b *Bot) editDone(c chatCtx, err error) {
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, "Updated.")
}

func (b *Bot) moveResource(ctx context.Context, c chatCtx, id int64, args string) error {
	if strings.EqualFold(args, "none") || args == "" {
		return b.catalog.SetResourceCategory(ctx, c.chatID, c.userID, id, nil)
	}
	cat, err := b.catalog.FindCategory(ctx, c.chatID, args)
	if err != nil {
		return err
	}
	return b.catalog.SetResourceCategory(ctx, c.chatID, c.userID, id, &cat.ID)
}

// sendResource delivers the file into the requesting thread and follows it
// with the detail card.
func (b *Bot) sendResource(ctx context.Context, c chatCtx, id int64) {
	s, err := b.query.Get(ctx, c.chatID, id)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	to := transport.Target{ChatID: c.chatID, ThreadID: c.threadID}
	if _, err := b.delivery.Deliver(ctx, c.chatID, id, c.userID, to); err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, renderDetail(s))
}

func (b *Bot) cmdHistory(ctx context.Context, c chatCtx, id int64) {
	edits, err := b.catalog.History(ctx, c.chatID, id, 20)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, renderHistory(id, edits))
}
