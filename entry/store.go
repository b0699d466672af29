package entry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("entry not found")

type Store struct {
	db *gorm.DB
}

// gormLog passes gorm's logs to zap
type gormLog struct {
	l *zap.SugaredLogger
}

func (g gormLog) Printf(format string, args ...interface{}) {
	g.l.Debugf(format, args...)
}

// Open connects to sqlite or postgres and migrates schema
func Open(driver string, dsn string, log *zap.SugaredLogger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "sqlite3", "":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver [%s]", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(gormLog{l: log}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening %s db: %w", driver, err)
	}
	s := NewStore(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("error migrating entries: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, e *Entry) error {
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *Store) Get(ctx context.Context, id uint) (Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e, err
}

func (s *Store) FindByName(ctx context.Context, name string) (Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("display_name = ?", name).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, err
}

func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).Order("id").Find(&entries).Error
	return entries, err
}

func (s *Store) UpdateData(ctx context.Context, id uint, d Data) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return e, err
	}
	e.Data = d
	return e, s.db.WithContext(ctx).Save(&e).Error
}

func (s *Store) UpdateOptions(ctx context.Context, id uint, o Options) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return e, err
	}
	e.Options = o
	return e, s.db.WithContext(ctx).Save(&e).Error
}

func (s *Store) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&Entry{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}
