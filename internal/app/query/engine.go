// internal/app/query/engine.go
package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	"github.com/dalemusser/groupvault/internal/app/system/limits"
	"github.com/dalemusser/groupvault/internal/app/system/metrics"
	"github.com/dalemusser/groupvault/internal/app/system/paging"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.uber.org/zap"
)

// Resources is the read side of the resource store.
type Resources interface {
	Search(ctx context.Context, f resourcestore.SearchFilter, after *paging.Cursor, limit int64) ([]models.Resource, error)
	GetLive(ctx context.Context, groupID, id int64) (models.Resource, error)
}

// Categories resolves category names and keyword matches.
type Categories interface {
	List(ctx context.Context, groupID int64) ([]models.Category, error)
	GetByIDs(ctx context.Context, groupID int64, ids []int64) ([]models.Category, error)
	IDsMatching(ctx context.Context, groupID int64, pattern string) ([]int64, error)
}

// Tags resolves tag names and keyword matches.
type Tags interface {
	List(ctx context.Context, groupID int64) ([]models.Tag, error)
	GetByIDs(ctx context.Context, groupID int64, ids []int64) ([]models.Tag, error)
	IDsMatching(ctx context.Context, groupID int64, pattern string) ([]int64, error)
}

// Params selects one page of search results. Keyword, CategoryID and TagID
// are all optional; with none set Search browses the whole group.
type Params struct {
	GroupID    int64
	Keyword    string
	CategoryID *int64
	TagID      *int64
	Cursor     string
	PageSize   int
}

// Summary is one result row with names resolved.
type Summary struct {
	ID           int64
	CreatedAt    time.Time
	FileType     string
	FileName     string
	FileSize     int64
	Description  string
	Preview      string
	CategoryID   *int64
	CategoryName string
	TagNames     []string
	UploaderID   int64
	UploaderName string
}

// Page is a search result. NextCursor is empty on the last page.
type Page struct {
	Items      []Summary
	NextCursor string
}

// Engine answers catalog searches. Tombstoned resources are never returned.
type Engine struct {
	resources  Resources
	categories Categories
	tags       Tags
	pageSize   int
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewEngine(r Resources, c Categories, t Tags, defaultPageSize int, m *metrics.Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		resources:  r,
		categories: c,
		tags:       t,
		pageSize:   paging.ClampSize(defaultPageSize),
		metrics:    m,
		log:        log,
	}
}

// Search returns one page ordered by (created_at desc, id desc). The keyword
// is a case-insensitive substring matched against the description, the
// file name and the names of the resource's category and tags. No match
// yields an empty page, not an error.
func (e *Engine) Search(ctx context.Context, p Params) (Page, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveSearch(time.Since(start).Seconds()) }()

	size := e.pageSize
	if p.PageSize > 0 {
		size = paging.ClampSize(p.PageSize)
	}

	var after *paging.Cursor
	if p.Cursor != "" {
		c, err := paging.DecodeCursor(p.Cursor)
		if err != nil {
			return Page{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
		}
		after = &c
	}

	f := resourcestore.SearchFilter{
		GroupID:    p.GroupID,
		CategoryID: p.CategoryID,
		TagID:      p.TagID,
	}
	if kw := text.Fold(strings.TrimSpace(p.Keyword)); kw != "" {
		f.Pattern = regexp.QuoteMeta(kw)
		var err error
		if f.MatchCategoryIDs, err = e.categories.IDsMatching(ctx, p.GroupID, f.Pattern); err != nil {
			return Page{}, err
		}
		if f.MatchTagIDs, err = e.tags.IDsMatching(ctx, p.GroupID, f.Pattern); err != nil {
			return Page{}, err
		}
	}

	rows, err := e.resources.Search(ctx, f, after, paging.LimitPlusOne(size))
	if err != nil {
		return Page{}, err
	}
	more := paging.TrimPage(&rows, size)

	items, err := e.summarize(ctx, p.GroupID, rows)
	if err != nil {
		return Page{}, err
	}
	page := Page{Items: items}
	if more && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextCursor = paging.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

// Get returns the detail view of one live resource.
func (e *Engine) Get(ctx context.Context, groupID, id int64) (Summary, error) {
	r, err := e.resources.GetLive(ctx, groupID, id)
	if err != nil {
		return Summary{}, err
	}
	items, err := e.summarize(ctx, groupID, []models.Resource{r})
	if err != nil {
		return Summary{}, err
	}
	return items[0], nil
}

// ListCategories returns the group's categories ordered by name.
func (e *Engine) ListCategories(ctx context.Context, groupID int64) ([]models.Category, error) {
	return e.categories.List(ctx, groupID)
}

// ListTags returns the group's tags ordered by name.
func (e *Engine) ListTags(ctx context.Context, groupID int64) ([]models.Tag, error) {
	return e.tags.List(ctx, groupID)
}

// summarize resolves category and tag names for rows with one lookup each.
func (e *Engine) summarize(ctx context.Context, groupID int64, rows []models.Resource) ([]Summary, error) {
	if len(rows) == 0 {
		return []Summary{}, nil
	}

	var catIDs, tagIDs []int64
	for _, r := range rows {
		if r.CategoryID != nil {
			catIDs = append(catIDs, *r.CategoryID)
		}
		tagIDs = append(tagIDs, r.TagIDs()...)
	}

	catNames := map[int64]string{}
	if len(catIDs) > 0 {
		cats, err := e.categories.GetByIDs(ctx, groupID, catIDs)
		if err != nil {
			return nil, err
		}
		for _, c := range cats {
			catNames[c.ID] = c.Name
		}
	}
	tagNames := map[int64]string{}
	if len(tagIDs) > 0 {
		tags, err := e.tags.GetByIDs(ctx, groupID, tagIDs)
		if err != nil {
			return nil, err
		}
		for _, tg := range tags {
			tagNames[tg.ID] = tg.Name
		}
	}

	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		s := Summary{
			ID:           r.ID,
			CreatedAt:    r.CreatedAt,
			FileType:     r.Artifact.FileType,
			FileName:     r.Artifact.FileName,
			FileSize:     r.Artifact.FileSize,
			Description:  r.Description,
			Preview:      preview(r.Description),
			CategoryID:   r.CategoryID,
			UploaderID:   r.UploaderID,
			UploaderName: r.UploaderName,
		}
		if r.CategoryID != nil {
			s.CategoryName = catNames[*r.CategoryID]
		}
		for _, id := range r.TagIDs() {
			if name, ok := tagNames[id]; ok {
				s.TagNames = append(s.TagNames, name)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func preview(desc string) string {
	if utf8.RuneCountInString(desc) <= limits.PreviewMax {
		return desc
	}
	r := []rune(desc)
	return string(r[:limits.PreviewMax]) + "…"
}
