package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SessionRecord is the persisted row for one session.
type SessionRecord struct {
	Session      string `gorm:"primaryKey;size:128"`
	AccessToken  string `gorm:"type:text"`
	RefreshToken string `gorm:"type:text"`
	TokenType    string `gorm:"size:32"`
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

func (SessionRecord) TableName() string { return "client_sessions" }

// GormStore keeps the session in a SQL table through gorm. It works with any
// gorm dialect; production uses postgres.
type GormStore struct {
	*broadcaster

	db      *gorm.DB
	session string
}

// OpenSQLite opens a local sqlite database file for the session table.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("credentials: open sqlite: %w", err)
	}
	return db, nil
}

// NewGormStore migrates the session table and returns the store.
func NewGormStore(db *gorm.DB, opts ...Option) (*GormStore, error) {
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("credentials: migrate: %w", err)
	}
	o := buildOptions(opts)
	return &GormStore{broadcaster: newBroadcaster(o), db: db, session: o.session}, nil
}

func (s *GormStore) load(ctx context.Context) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).First(&rec, "session = ?", s.session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: load: %w", err)
	}
	return &rec, nil
}

func (s *GormStore) AccessToken(ctx context.Context) (string, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if rec.AccessToken == "" {
		return "", ErrNoCredentials
	}
	return rec.AccessToken, nil
}

func (s *GormStore) RefreshToken(ctx context.Context) (string, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if rec.RefreshToken == "" {
		return "", ErrNoCredentials
	}
	return rec.RefreshToken, nil
}

func (s *GormStore) Tokens(ctx context.Context) (TokenSet, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return TokenSet{}, err
	}
	ts := TokenSet{AccessToken: rec.AccessToken, RefreshToken: rec.RefreshToken, TokenType: rec.TokenType}
	if rec.ExpiresAt != nil {
		ts.ExpiresAt = rec.ExpiresAt.UTC()
	}
	return ts, nil
}

func (s *GormStore) SetCredentials(ctx context.Context, tokens TokenSet) error {
	rec := SessionRecord{
		Session:      s.session,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
	}
	if !tokens.ExpiresAt.IsZero() {
		exp := tokens.ExpiresAt.UTC()
		rec.ExpiresAt = &exp
	}
	update := []string{"access_token", "token_type", "expires_at", "updated_at"}
	if tokens.RefreshToken != "" {
		update = append(update, "refresh_token")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session"}},
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("credentials: save: %w", err)
	}
	s.emit(ctx, EventSignedIn, tokens.ExpiresAt)
	return nil
}

func (s *GormStore) SignOut(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&SessionRecord{}, "session = ?", s.session).Error; err != nil {
		return fmt.Errorf("credentials: delete: %w", err)
	}
	s.emit(ctx, EventSignedOut, time.Time{})
	return nil
}
