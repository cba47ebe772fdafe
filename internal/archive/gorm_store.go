package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"statchat/pkg/domain"
)

// GormStore persists transcripts in Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and runs migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&MessageModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Append stores the messages, ignoring duplicates on retry.
func (s *GormStore) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]MessageModel, 0, len(msgs))
	for _, msg := range msgs {
		row, err := toModel(sessionID, msg)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&rows).Error
}

// List returns the most recent messages for a session in chronological order.
// limit <= 0 means no limit.
func (s *GormStore) List(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	// seq is a monotonic insertion counter, so it breaks created_at ties in
	// conversational order where random ids could not.
	q := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []MessageModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return chronological(rows)
}

// chronological converts newest-first rows into conversational order.
func chronological(rows []MessageModel) ([]domain.Message, error) {
	msgs := make([]domain.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		msg, err := fromModel(rows[i])
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func toModel(sessionID string, msg domain.Message) (MessageModel, error) {
	row := MessageModel{
		ID:        msg.ID,
		SessionID: sessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Model:     string(msg.Model),
		CreatedAt: msg.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if len(msg.Sources) > 0 {
		data, err := json.Marshal(msg.Sources)
		if err != nil {
			return MessageModel{}, err
		}
		row.Sources = datatypes.JSON(data)
	}
	if msg.Metadata != nil {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return MessageModel{}, err
		}
		row.Metadata = datatypes.JSON(data)
	}
	return row, nil
}

func fromModel(row MessageModel) (domain.Message, error) {
	msg := domain.Message{
		ID:        row.ID,
		Role:      domain.Role(row.Role),
		Content:   row.Content,
		Model:     domain.Model(row.Model),
		CreatedAt: row.CreatedAt,
	}
	if len(row.Sources) > 0 {
		if err := json.Unmarshal(row.Sources, &msg.Sources); err != nil {
			return domain.Message{}, err
		}
	}
	if len(row.Metadata) > 0 {
		var meta domain.QueryMetadata
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return domain.Message{}, err
		}
		msg.Metadata = &meta
	}
	return msg, nil
}
