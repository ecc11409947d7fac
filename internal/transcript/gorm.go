package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the single-row-per-session storage shape for the gorm drivers.
type Record struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Entries   string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Record) TableName() string { return "transcripts" }

// GormStore persists transcripts through gorm, one row per session id.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("transcript migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// OpenSQLite opens (or creates) a sqlite-backed store at path.
// Use "file::memory:?cache=shared" for an in-memory database.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewGormStore(db)
}

// OpenMySQL opens a mysql-backed store with the given DSN.
func OpenMySQL(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return NewGormStore(db)
}

func (s *GormStore) Get(ctx context.Context, sessionID string) (Transcript, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript get %s: %w", sessionID, err)
	}

	var t Transcript
	if err := json.Unmarshal([]byte(rec.Entries), &t); err != nil {
		return nil, fmt.Errorf("transcript decode %s: %w", sessionID, err)
	}
	return t, nil
}

func (s *GormStore) Put(ctx context.Context, sessionID string, t Transcript) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("transcript encode %s: %w", sessionID, err)
	}

	rec := Record{SessionID: sessionID, Entries: string(raw)}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"entries", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("transcript put %s: %w", sessionID, err)
	}
	return nil
}
