package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"member-activity/internal/config"
	"member-activity/internal/models"
)

// GormStore keeps member state in sqlite or postgres.
type GormStore struct {
	db       *gorm.DB
	pageSize int
	logger   *slog.Logger
}

func Open(cfg config.Database, log *slog.Logger) (*GormStore, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Type {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.SQLite.Path), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
		}
		log.Info("connected to SQLite database", "path", cfg.SQLite.Path)
	case "postgres":
		dsn, err := ensureTimezoneUTC(cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database URL: %w", err)
		}
		db, err = gorm.Open(postgres.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		log.Info("connected to Postgres database")
	default:
		return nil, fmt.Errorf("database type %q is not served by gorm", cfg.Type)
	}

	if err := db.AutoMigrate(&models.MemberState{}, &models.CategoryCount{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &GormStore{db: db, pageSize: pageSize, logger: log}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping returns the number of stored members.
func (s *GormStore) Ping(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.MemberState{}).Count(&n).Error
	return n, err
}

// UpsertMembers writes one chunk in a single transaction. Updates are
// grouped by the sticky columns they set; each group overwrites the
// profile columns and only its own sticky columns on conflict.
func (s *GormStore) UpsertMembers(ctx context.Context, updates []models.MemberUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, group := range models.GroupBySignature(updates) {
			rows := make([]models.MemberState, len(group))
			for i, u := range group {
				rows[i] = models.StateFromUpdate(u)
			}
			cols := append(slices.Clone(models.ProfileColumns), group[0].StickyColumns()...)
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns(cols),
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("upsert members: %w", err)
			}
		}
		return upsertCounts(tx, updates)
	})
}

// UpsertCounts writes only per-category counts.
func (s *GormStore) UpsertCounts(ctx context.Context, updates []models.MemberUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertCounts(tx, updates)
	})
}

func upsertCounts(tx *gorm.DB, updates []models.MemberUpdate) error {
	var rows []models.CategoryCount
	for _, u := range updates {
		rows = append(rows, models.CountsFromUpdate(u)...)
	}
	if len(rows) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("upsert counts: %w", err)
	}
	return nil
}

// LoadMembers reads every stored member page by page.
func (s *GormStore) LoadMembers(ctx context.Context) ([]models.MemberState, error) {
	var all []models.MemberState
	for offset := 0; ; offset += s.pageSize {
		var page []models.MemberState
		err := s.db.WithContext(ctx).
			Order("total_messages DESC, user_id ASC").
			Limit(s.pageSize).
			Offset(offset).
			Find(&page).Error
		if err != nil {
			return nil, fmt.Errorf("load members at %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < s.pageSize {
			return all, nil
		}
	}
}

// MissingSnapshots returns members with neither snapshot stored.
func (s *GormStore) MissingSnapshots(ctx context.Context) ([]models.MemberState, error) {
	var states []models.MemberState
	err := s.db.WithContext(ctx).
		Where("role_baseline IS NULL AND role_comparison IS NULL").
		Find(&states).Error
	return states, err
}

func (s *GormStore) ClearPromotions(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.MemberState{}).
		Where("user_id IN ?", userIDs).
		Update("is_promoted", false).Error
}

// TopMembers ranks stored members by a category count, or by total
// messages for models.TotalCategory.
func (s *GormStore) TopMembers(ctx context.Context, category string, limit int) ([]models.Standing, error) {
	var out []models.Standing
	db := s.db.WithContext(ctx)
	if category == models.TotalCategory {
		err := db.Model(&models.MemberState{}).
			Select("user_id, username, display_name, total_messages AS count").
			Where("total_messages > 0").
			Order("total_messages DESC, user_id ASC").
			Limit(limit).
			Scan(&out).Error
		return out, err
	}

	err := db.Table("member_activity AS a").
		Select("a.user_id, COALESCE(m.username, '') AS username, COALESCE(m.display_name, '') AS display_name, a.count").
		Joins("LEFT JOIN members AS m ON m.user_id = a.user_id").
		Where("a.category = ? AND a.count > 0", category).
		Order("a.count DESC, a.user_id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func (s *GormStore) PromotedMembers(ctx context.Context) ([]models.MemberState, error) {
	var states []models.MemberState
	err := s.db.WithContext(ctx).
		Where("is_promoted = ?", true).
		Order("role_comparison DESC, user_id ASC").
		Find(&states).Error
	return states, err
}

// ensureTimezoneUTC adds TimeZone=UTC to URL-style DSNs that lack it.
func ensureTimezoneUTC(dsn string) (string, error) {
	if !strings.Contains(dsn, "://") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if q.Get("TimeZone") == "" {
		q.Set("TimeZone", "UTC")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
