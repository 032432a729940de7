// internal/app/bot/uploadflow.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dalemusser/groupvault/internal/app/upload"
	"github.com/dalemusser/groupvault/internal/domain/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// artifactFrom captures the file carried by m, if any.
func artifactFrom(m *tgbotapi.Message, threadID int) (models.ArtifactRef, bool) {
	if m == nil || m.Chat == nil {
		return models.ArtifactRef{}, false
	}
	ref := models.ArtifactRef{ChatID: m.Chat.ID, MessageID: m.MessageID, ThreadID: threadID}
	switch {
	case m.Document != nil:
		ref.FileType = models.FileTypeDocument
		ref.FileID, ref.FileUniqueID = m.Document.FileID, m.Document.FileUniqueID
		ref.FileName, ref.FileSize = m.Document.FileName, int64(m.Document.FileSize)
	case len(m.Photo) > 0:
		p := m.Photo[len(m.Photo)-1]
		ref.FileType = models.FileTypePhoto
		ref.FileID, ref.FileUniqueID = p.FileID, p.FileUniqueID
		ref.FileName, ref.FileSize = "photo_"+p.FileUniqueID+".jpg", int64(p.FileSize)
	case m.Video != nil:
		ref.FileType = models.FileTypeVideo
		ref.FileID, ref.FileUniqueID = m.Video.FileID, m.Video.FileUniqueID
		ref.FileName, ref.FileSize = m.Video.FileName, int64(m.Video.FileSize)
		if ref.FileName == "" {
			ref.FileName = "video_" + ref.FileUniqueID + ".mp4"
		}
	case m.Audio != nil:
		ref.FileType = models.FileTypeAudio
		ref.FileID, ref.FileUniqueID = m.Audio.FileID, m.Audio.FileUniqueID
		ref.FileName, ref.FileSize = m.Audio.FileName, int64(m.Audio.FileSize)
		if ref.FileName == "" {
			ref.FileName = "audio_" + ref.FileUniqueID + ".mp3"
		}
	case m.Voice != nil:
		ref.FileType = models.FileTypeVoice
		ref.FileID, ref.FileUniqueID = m.Voice.FileID, m.Voice.FileUniqueID
		ref.FileName, ref.FileSize = "voice_"+m.Voice.FileUniqueID+".ogg", int64(m.Voice.FileSize)
	default:
		return models.ArtifactRef{}, false
	}
	return ref, true
}

func (b *Bot) cmdUpload(ctx context.Context, c chatCtx) {
	ref, ok := artifactFrom(c.u.Message.ReplyToMessage, c.u.ReplyThreadID)
	if !ok {
		b.reply(c, "Reply to a message that contains a file with /upload.")
		return
	}
	wf, err := b.uploads.Start(c.key(), c.chatID, ref, c.name)
	if err != nil {
		b.reply(c, b.failure(err))
		if !errors.Is(err, upload.ErrWorkflowActive) {
			return
		}
	}
	b.prompt(ctx, c, wf, 0)
}

func (b *Bot) cmdCancel(c chatCtx) {
	if _, err := b.uploads.Cancel(c.key()); err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.reply(c, "Upload cancelled.")
}

// onWorkflowText feeds plain text to the sender's active upload: a new
// category name, a new tag name or the description, depending on the step.
// Text from users with no upload in progress is ignored.
func (b *Bot) onWorkflowText(ctx context.Context, c chatCtx, text string) {
	wf, err := b.uploads.Current(c.key())
	if err != nil {
		return
	}
	switch wf.State {
	case upload.StateAwaitingCategory:
		wf, err = b.uploads.CreateCategory(ctx, c.key(), text)
	case upload.StateAwaitingTags:
		wf, err = b.uploads.CreateTag(ctx, c.key(), text)
	case upload.StateAwaitingDescription:
		wf, err = b.uploads.SetDescription(c.key(), text)
	default:
		return
	}
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	b.prompt(ctx, c, wf, 0)
}

// onUploadButton handles the "u:" callbacks.
func (b *Bot) onUploadButton(ctx context.Context, c chatCtx, action string) (upload.Workflow, string, error) {
	key := c.key()
	verb, arg, _ := strings.Cut(action, ":")
	switch verb {
	case "c":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return upload.Workflow{}, "", upload.ErrWrongState
		}
		wf, err := b.uploads.SelectCategory(ctx, key, id)
		return wf, "", err
	case "t":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return upload.Workflow{}, "", upload.ErrWrongState
		}
		wf, err := b.uploads.ToggleTag(ctx, key, id)
		return wf, "", err
	case "nc":
		wf, err := b.uploads.Current(key)
		return wf, "Type the new category name.", err
	case "nt":
		wf, err := b.uploads.Current(key)
		return wf, "Type the new tag name.", err
	case "d":
		wf, err := b.uploads.FinishTags(key)
		return wf, "", err
	case "sd":
		wf, err := b.uploads.SetDescription(key, "")
		return wf, "", err
	case "ok":
		wf, r, err := b.uploads.Confirm(ctx, key)
		if err != nil {
			return wf, "", err
		}
		return wf, fmt.Sprintf("Saved as file %d.", r.ID), nil
	case "x":
		wf, err := b.uploads.Cancel(key)
		return wf, "Cancelled.", err
	}
	return upload.Workflow{}, "", upload.ErrWrongState
}

// prompt shows the next step of wf, editing msgID in place when set.
func (b *Bot) prompt(ctx context.Context, c chatCtx, wf upload.Workflow, msgID int) {
	text, kb, err := b.renderPrompt(ctx, wf)
	if err != nil {
		b.reply(c, b.failure(err))
		return
	}
	if msgID != 0 {
		b.edit(c.chatID, msgID, text, kb)
		return
	}
	b.replyMarkup(c, text, kb)
}

func (b *Bot) renderPrompt(ctx context.Context, wf upload.Workflow) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	head := "File: " + fileLabel(wf.Artifact) + "\n\n"
	cancel := tgbotapi.NewInlineKeyboardButtonData("Cancel", "u:x")

	switch wf.State {
	case upload.StateAwaitingCategory:
		cats, err := b.query.ListCategories(ctx, wf.GroupID)
		if err != nil {
			return "", nil, err
		}
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, cat := range cats {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(cat.Name, fmt.Sprintf("u:c:%d", cat.ID))))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("New category", "u:nc"), cancel))
		kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
		text := head + "Choose a category."
		if len(cats) == 0 {
			text = head + "No categories yet. An admin can type a new category name now."
		}
		return text, &kb, nil

	case upload.StateAwaitingTags:
		tags, err := b.query.ListTags(ctx, wf.GroupID)
		if err != nil {
			return "", nil, err
		}
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, tg := range tags {
			label := "#" + tg.Name
			if wf.HasTag(tg.ID) {
				label = "[x] " + label
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("u:t:%d", tg.ID))))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("New tag", "u:nt"),
			tgbotapi.NewInlineKeyboardButtonData("Done", "u:d"),
			cancel))
		kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
		return head + "Pick tags, type a new one, or press Done.", &kb, nil

	case upload.StateAwaitingDescription:
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Skip", "u:sd"), cancel))
		return head + "Send a short description, or press Skip.", &kb, nil

	case upload.StateConfirm:
		var sb strings.Builder
		sb.WriteString(head)
		if wf.CategoryID != nil {
			if cat, err := b.catalog.GetCategory(ctx, wf.GroupID, *wf.CategoryID); err == nil {
				sb.WriteString("Category: " + cat.Name + "\n")
			}
		}
		if len(wf.TagIDs) > 0 {
			names := make([]string, 0, len(wf.TagIDs))
			for _, id := range wf.TagIDs {
				if tg, err := b.catalog.GetTag(ctx, wf.GroupID, id); err == nil {
					names = append(names, "#"+tg.Name)
				}
			}
			sb.WriteString("Tags: " + strings.Join(names, " ") + "\n")
		}
		if wf.Description != "" {
			sb.WriteString("Description: " + wf.Description + "\n")
		}
		sb.WriteString("\nSave this file?")
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Save", "u:ok"), cancel))
		return sb.String(), &kb, nil

	case upload.StateCommitted:
		return fmt.Sprintf("%sSaved as file %d. Fetch it with /get_%d.", head, wf.ResourceID, wf.ResourceID), nil, nil
	}
	return head + "Upload " + string(wf.State) + ".", nil, nil
}
