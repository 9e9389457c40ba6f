package persistence

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wfunc/drawguess/apperr"
	"github.com/wfunc/drawguess/words"
)

// WordModel 词库
type WordModel struct {
	ID    uint   `gorm:"primaryKey"`
	Text  string `gorm:"uniqueIndex;not null"`
	Theme string `gorm:"index;not null;default:''"`
}

func (WordModel) TableName() string { return "words" }

// WordBank supplies words from the words table, optionally limited to one
// theme.
type WordBank struct {
	db    *gorm.DB
	theme string
}

func NewWordBank(db *gorm.DB, theme string) *WordBank {
	return &WordBank{db: db, theme: theme}
}

func (b *WordBank) query(ctx context.Context, n int) *gorm.DB {
	q := b.db.WithContext(ctx).Model(&WordModel{})
	if b.theme != "" {
		q = q.Where("theme = ?", b.theme)
	}
	return q.Order("random()").Limit(n)
}

// Words returns up to n distinct words in random order. Fewer than n is not
// an error here; the caller decides whether that is enough.
func (b *WordBank) Words(ctx context.Context, n int) ([]string, error) {
	var out []string
	if err := b.query(ctx, n).Pluck("text", &out).Error; err != nil {
		return nil, apperr.Unavailable(err)
	}
	if len(out) == 0 {
		return nil, words.ErrNoWords
	}
	return out, nil
}

// Seed inserts list under theme, skipping words already present.
func (b *WordBank) Seed(ctx context.Context, theme string, list []string) (int64, error) {
	rows := make([]WordModel, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, w := range list {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		rows = append(rows, WordModel{Text: w, Theme: theme})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "text"}}, DoNothing: true}).
		CreateInBatches(rows, 100)
	return res.RowsAffected, res.Error
}

func (b *WordBank) Count(ctx context.Context) (int64, error) {
	var n int64
	q := b.db.WithContext(ctx).Model(&WordModel{})
	if b.theme != "" {
		q = q.Where("theme = ?", b.theme)
	}
	err := q.Count(&n).Error
	return n, err
}
