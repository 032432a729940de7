// internal/app/bot/bot.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dalemusser/groupvault/internal/app/catalog"
	"github.com/dalemusser/groupvault/internal/app/delivery"
	"github.com/dalemusser/groupvault/internal/app/groupinit"
	"github.com/dalemusser/groupvault/internal/app/query"
	"github.com/dalemusser/groupvault/internal/app/roles"
	"github.com/dalemusser/groupvault/internal/app/system/timeouts"
	"github.com/dalemusser/groupvault/internal/app/transport/telegram"
	"github.com/dalemusser/groupvault/internal/app/upload"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Deps groups the core services the bot drives.
type Deps struct {
	API      telegram.API
	Issuer   *groupinit.Issuer
	Roles    *roles.Service
	Catalog  *catalog.Service
	Uploads  *upload.Manager
	Query    *query.Engine
	Delivery *delivery.Coordinator
	Log      *zap.Logger
}

// Bot maps chat commands and button presses onto the core services and
// renders their results as plain text. It holds no catalog state of its own
// beyond the pager's short-lived search continuations.
type Bot struct {
	api      telegram.API
	issuer   *groupinit.Issuer
	roles    *roles.Service
	catalog  *catalog.Service
	uploads  *upload.Manager
	query    *query.Engine
	delivery *delivery.Coordinator
	pager    *pager
	log      *zap.Logger
}

func New(d Deps) *Bot {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Bot{
		api:      d.API,
		issuer:   d.Issuer,
		roles:    d.Roles,
		catalog:  d.Catalog,
		uploads:  d.Uploads,
		query:    d.Query,
		delivery: d.Delivery,
		pager:    newPager(1024),
		log:      d.Log,
	}
}

// chatCtx carries what every handler needs about the incoming update.
type chatCtx struct {
	u        Update
	chatID   int64
	userID   int64
	threadID int
	msgID    int
	name     string
	group    bool
}

func (c chatCtx) key() upload.Key { return upload.Key{ChatID: c.chatID, UserID: c.userID} }

// Handle processes one update. Each call bounds its store work with the
// medium timeout.
func (b *Bot) Handle(ctx context.Context, u Update) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), b.log, "chat update")
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", zap.Int("update_id", u.UpdateID), zap.Any("panic", r))
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		b.onCallback(ctx, u)
	case u.Message != nil:
		b.onMessage(ctx, u)
	}
}

func (b *Bot) onMessage(ctx context.Context, u Update) {
	m := u.Message
	if m.Chat == nil || m.From == nil || m.From.IsBot {
		return
	}
	c := chatCtx{
		u:        u,
		chatID:   m.Chat.ID,
		userID:   m.From.ID,
		threadID: u.ThreadID,
		msgID:    m.MessageID,
		name:     displayName(m.From),
		group:    m.Chat.IsGroup() || m.Chat.IsSuperGroup(),
	}

	if m.IsCommand() {
		b.onCommand(ctx, c, strings.ToLower(m.Command()), strings.TrimSpace(m.CommandArguments()))
		return
	}
	if c.group && m.Text != "" {
		b.onWorkflowText(ctx, c, m.Text)
	}
}

func (b *Bot) onCommand(ctx context.Context, c chatCtx, cmd, args string) {
	if cmd == "start" || cmd == "help" {
		b.reply(c, helpText)
		return
	}
	if !c.group {
		b.reply(c, "Add me to a group and use the commands there.")
		return
	}

	if name, id, ok := splitIDCommand(cmd); ok {
		b.onResourceCommand(ctx, c, name, id, args)
		return
	}

	switch cmd {
	case "init":
		b.cmdInit(ctx, c, args)
	case "setrole":
		b.cmdSetRole(ctx, c, args)
	case "roles":
		b.cmdRoles(ctx, c)
	case "upload":
		b.cmdUpload(ctx, c)
	case "cancel":
		b.cmdCancel(c)
	case "search":
		b.cmdSearch(ctx, c, args)
	case "resources", "browse":
		b.browse(ctx, c, query.Params{GroupID: c.chatID}, 0)
	case "categories":
		b.cmdCategories(ctx, c)
	case "tags":
		b.cmdTags(ctx, c)
	case "add_category":
		b.cmdAddCategory(ctx, c, args)
	case "rename_category":
		b.cmdRenameCategory(ctx, c, args)
	case "delete_category":
		b.cmdDeleteCategory(ctx, c, args)
	case "add_tag":
		b.cmdAddTag(ctx, c, args)
	case "rename_tag":
		b.cmdRenameTag(ctx, c, args)
	case "delete_tag":
		b.cmdDeleteTag(ctx, c, args)
	}
}

// splitIDCommand parses commands of the form name_123.
func splitIDCommand(cmd string) (string, int64, bool) {
	i := strings.LastIndexByte(cmd, '_')
	if i <= 0 || i == len(cmd)-1 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(cmd[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	switch name := cmd[:i]; name {
	case "get", "delete", "history", "describe", "tag", "untag", "move":
		return name, id, true
	}
	return "", 0, false
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// --- output ---

func (b *Bot) reply(c chatCtx, text string) {
	b.replyMarkup(c, text, nil)
}

func (b *Bot) replyMarkup(c chatCtx, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ReplyToMessageID = c.msgID
	msg.AllowSendingWithoutReply = true
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send reply failed", zap.Int64("chat_id", c.chatID), zap.Error(err))
	}
}

// edit replaces the text and buttons of the message a button belongs to.
func (b *Bot) edit(chatID int64, msgID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	var cfg tgbotapi.EditMessageTextConfig
	if markup != nil {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, *markup)
	} else {
		cfg = tgbotapi.NewEditMessageText(chatID, msgID, text)
	}
	cfg.DisableWebPagePreview = true
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Debug("edit message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Debug("answer callback failed", zap.Error(err))
	}
}

// failure renders err for the chat and logs anything unexpected.
func (b *Bot) failure(err error) string {
	var pf *errs.PartialFailure
	switch {
	case errors.As(err, &pf):
		return fmt.Sprintf("File %d removed from the catalog; deleting the message will be retried.", pf.ResourceID)
	case errors.Is(err, groupinit.ErrRateLimited):
		return "Too many attempts. Please wait a few minutes."
	case errors.Is(err, upload.ErrWorkflowActive):
		return "You already have an upload in progress. Finish it or send /cancel."
	case errors.Is(err, upload.ErrNoWorkflow):
		return "You have no upload in progress."
	case errors.Is(err, upload.ErrExpired):
		return "That upload timed out. Start again with /upload."
	case errors.Is(err, upload.ErrWrongState):
		return "That step does not apply right now."
	case errors.Is(err, errs.ErrUnauthorized):
		return "You are not allowed to do that."
	case errors.Is(err, errs.ErrNotFound):
		return "Not found."
	case errors.Is(err, errs.ErrConflict):
		return "That name is already taken."
	case errors.Is(err, errs.ErrIntegrityViolation):
		return "That category still has resources. Move them first."
	case errors.Is(err, errs.ErrInvalidInput):
		return "Invalid input: " + strings.TrimPrefix(err.Error(), errs.ErrInvalidInput.Error()+": ")
	case errors.Is(err, errs.ErrUpstreamTransient):
		return "Telegram did not respond. Please try again."
	}
	b.log.Error("unexpected error", zap.Error(err))
	return "Something went wrong. Please try again."
}

const helpText = `groupvault keeps a searchable catalog of files shared in this group.

/upload - reply to a file to add it
/search <words> - find files
/resources - browse newest first
/categories, /tags - list and filter
/get_N - send file N here
/delete_N - remove file N (uploader or admin)
/describe_N <text>, /move_N <category>, /tag_N <tag>, /untag_N <tag> - edit file N
/history_N - edit history of file N
/add_category, /rename_category, /delete_category - admins
/add_tag, /rename_tag, /delete_tag
/setrole <user id> <member|admin|super_admin> - reply to a user or pass their id
/roles - list roles
/init <token> - claim this group with the bootstrap token`
