// internal/app/bot/render.go
package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/groupvault/internal/app/query"
	"github.com/dalemusser/groupvault/internal/domain/models"
)

func fileLabel(ref models.ArtifactRef) string {
	if ref.FileName != "" {
		return ref.FileName
	}
	return ref.FileType
}

func fileLabelOf(s query.Summary) string {
	if s.FileName != "" {
		return s.FileName
	}
	return s.FileType
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func humanSize(n int64) string {
	switch {
	case n <= 0:
		return ""
	case n < 1<<10:
		return fmt.Sprintf("%d B", n)
	case n < 1<<20:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	}
}

func renderPage(p query.Params, page query.Page) string {
	if len(page.Items) == 0 {
		if p.Cursor != "" {
			return "No more results."
		}
		if p.Keyword != "" {
			return fmt.Sprintf("Nothing matches %q.", p.Keyword)
		}
		return "No files yet. Reply to a file with /upload to add one."
	}

	var sb strings.Builder
	if p.Keyword != "" {
		fmt.Fprintf(&sb, "Results for %q:\n\n", p.Keyword)
	} else {
		sb.WriteString("Files, newest first:\n\n")
	}
	for _, s := range page.Items {
		fmt.Fprintf(&sb, "%s\n", fileLabelOf(s))
		meta := []string{}
		if s.CategoryName != "" {
			meta = append(meta, s.CategoryName)
		}
		if s.UploaderName != "" {
			meta = append(meta, "by "+s.UploaderName)
		}
		if len(meta) > 0 {
			sb.WriteString(strings.Join(meta, " | ") + "\n")
		}
		if s.Preview != "" {
			sb.WriteString(s.Preview + "\n")
		}
		fmt.Fprintf(&sb, "/get_%d\n\n", s.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderDetail(s query.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File %d: %s\n", s.ID, fileLabelOf(s))
	if s.CategoryName != "" {
		sb.WriteString("Category: " + s.CategoryName + "\n")
	} else {
		sb.WriteString("Category: none\n")
	}
	if len(s.TagNames) > 0 {
		tags := make([]string, len(s.TagNames))
		for i, n := range s.TagNames {
			tags[i] = "#" + n
		}
		sb.WriteString("Tags: " + strings.Join(tags, " ") + "\n")
	}
	if s.UploaderName != "" {
		sb.WriteString("Uploaded by " + s.UploaderName + "\n")
	}
	if size := humanSize(s.FileSize); size != "" {
		sb.WriteString("Size: " + size + "\n")
	}
	if s.Description != "" {
		sb.WriteString("\n" + s.Description + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderHistory(id int64, edits []models.ResourceEdit) string {
	if len(edits) == 0 {
		return fmt.Sprintf("File %d has no recorded edits.", id)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "History of file %d:\n", id)
	for _, e := range edits {
		fmt.Fprintf(&sb, "%s user %d %s", e.EditedAt.UTC().Format("2006-01-02 15:04"), e.EditorID, e.Field)
		switch {
		case e.OldValue != "" && e.NewValue != "":
			fmt.Fprintf(&sb, ": %s -> %s", e.OldValue, e.NewValue)
		case e.NewValue != "":
			fmt.Fprintf(&sb, ": %s", e.NewValue)
		case e.OldValue != "":
			fmt.Fprintf(&sb, ": was %s", e.OldValue)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
