package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultListLimit = 50

type resultRow struct {
	ID         uint   `gorm:"primaryKey"`
	TopicID    string `gorm:"index;not null"`
	Title      string
	Question   string
	ClosedAt   time.Time `gorm:"index;not null"`
	Voters     int
	TotalsJSON string `gorm:"type:text;not null"`
	NamesJSON  string `gorm:"type:text"`
}

func (resultRow) TableName() string { return "poll_results" }

type GormStore struct {
	db *gorm.DB
}

// Open picks the dialect from dsn: postgres:// URLs use pgx, anything else is
// a sqlite file path.
func Open(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("archive: empty dsn")
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if err := db.AutoMigrate(&resultRow{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(ctx context.Context, r Result) error {
	totals, err := json.Marshal(r.Totals)
	if err != nil {
		return err
	}
	row := resultRow{
		TopicID:    r.TopicID,
		Title:      r.Title,
		Question:   r.Question,
		ClosedAt:   r.ClosedAt,
		Voters:     r.Voters,
		TotalsJSON: string(totals),
	}
	if r.Names != nil {
		names, err := json.Marshal(r.Names)
		if err != nil {
			return err
		}
		row.NamesJSON = string(names)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) List(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []resultRow
	err := s.db.WithContext(ctx).Order("closed_at desc, id desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		r := Result{
			ID:       row.ID,
			TopicID:  row.TopicID,
			Title:    row.Title,
			Question: row.Question,
			ClosedAt: row.ClosedAt.UTC(),
			Voters:   row.Voters,
		}
		if err := json.Unmarshal([]byte(row.TotalsJSON), &r.Totals); err != nil {
			return nil, fmt.Errorf("archive: row %d totals: %w", row.ID, err)
		}
		if row.NamesJSON != "" {
			if err := json.Unmarshal([]byte(row.NamesJSON), &r.Names); err != nil {
				return nil, fmt.Errorf("archive: row %d names: %w", row.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
