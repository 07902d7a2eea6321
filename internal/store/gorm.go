package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Option struct {
	Name  string `gorm:"primaryKey;size:191"`
	Value string `gorm:"type:text"`
}

func (Option) TableName() string { return "options" }

type ItemMeta struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ItemID    uint64 `gorm:"uniqueIndex:idx_item_meta;not null"`
	MetaKey   string `gorm:"uniqueIndex:idx_item_meta;index;size:191;not null"`
	MetaValue string `gorm:"type:text"`
}

func (ItemMeta) TableName() string { return "item_meta" }

type OpenOptions struct {
	Driver          string
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// Open connects, tunes the pool, pings and migrates the two tables.
func Open(o OpenOptions) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch o.Driver {
	case "mysql":
		dialector = mysql.Open(o.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(o.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", o.Driver)
	}

	var level logger.LogLevel
	switch o.LogLevel {
	case "silent":
		level = logger.Silent
	case "error":
		level = logger.Error
	case "info":
		level = logger.Info
	default:
		level = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if o.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(o.MaxIdleConns)
	}
	if o.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(o.MaxOpenConns)
	}
	if o.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(o.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", o.Driver, err)
	}
	if err := db.AutoMigrate(&Option{}, &ItemMeta{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

// Gorm implements OptionStore and MetaStore on a SQL database.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

func (g *Gorm) GetOption(ctx context.Context, name string) (string, error) {
	var o Option
	err := g.db.WithContext(ctx).Where("name = ?", name).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get option %s: %w", name, err)
	}
	return o.Value, nil
}

func (g *Gorm) SetOption(ctx context.Context, name, value string) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Option{Name: name, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set option %s: %w", name, err)
	}
	return nil
}

func (g *Gorm) AddOption(ctx context.Context, name, value string) (bool, error) {
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Option{Name: name, Value: value})
	if res.Error != nil {
		return false, fmt.Errorf("add option %s: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (g *Gorm) DeleteOption(ctx context.Context, name string) error {
	if err := g.db.WithContext(ctx).Where("name = ?", name).Delete(&Option{}).Error; err != nil {
		return fmt.Errorf("delete option %s: %w", name, err)
	}
	return nil
}

func (g *Gorm) DeleteOptionsByPrefix(ctx context.Context, prefix string) (int64, error) {
	res := g.db.WithContext(ctx).Where("name LIKE ? ESCAPE '!'", escapeLike(prefix)+"%").Delete(&Option{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete options %s*: %w", prefix, res.Error)
	}
	return res.RowsAffected, nil
}

func (g *Gorm) GetMeta(ctx context.Context, itemID uint64, key string) (string, error) {
	var m ItemMeta
	err := g.db.WithContext(ctx).Where("item_id = ? AND meta_key = ?", itemID, key).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get meta %d/%s: %w", itemID, key, err)
	}
	return m.MetaValue, nil
}

func (g *Gorm) SetMeta(ctx context.Context, itemID uint64, key, value string) error {
	return g.UpsertMetaBulk(ctx, []uint64{itemID}, key, value)
}

func (g *Gorm) DeleteMeta(ctx context.Context, itemID uint64, key string) error {
	err := g.db.WithContext(ctx).Where("item_id = ? AND meta_key = ?", itemID, key).Delete(&ItemMeta{}).Error
	if err != nil {
		return fmt.Errorf("delete meta %d/%s: %w", itemID, key, err)
	}
	return nil
}

func (g *Gorm) DeleteMetaKey(ctx context.Context, key string) (int64, error) {
	res := g.db.WithContext(ctx).Where("meta_key = ?", key).Delete(&ItemMeta{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete meta key %s: %w", key, res.Error)
	}
	return res.RowsAffected, nil
}

func (g *Gorm) ItemsWithMeta(ctx context.Context, key, value string) ([]uint64, error) {
	var ids []uint64
	err := g.db.WithContext(ctx).Model(&ItemMeta{}).
		Where("meta_key = ? AND meta_value = ?", key, value).
		Order("item_id").Pluck("item_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list items with %s=%s: %w", key, value, err)
	}
	return ids, nil
}

func (g *Gorm) UpsertMetaBulk(ctx context.Context, itemIDs []uint64, key, value string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	rows := make([]ItemMeta, len(itemIDs))
	for i, id := range itemIDs {
		rows[i] = ItemMeta{ItemID: id, MetaKey: key, MetaValue: value}
	}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}, {Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("upsert meta %s: %w", key, err)
	}
	return nil
}

func (g *Gorm) DeleteMetaBulk(ctx context.Context, itemIDs []uint64, key string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	res := g.db.WithContext(ctx).Where("meta_key = ? AND item_id IN ?", key, itemIDs).Delete(&ItemMeta{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete meta %s: %w", key, res.Error)
	}
	return res.RowsAffected, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '!':
			out = append(out, '!')
		}
		out = append(out, s[i])
	}
	return string(out)
}
