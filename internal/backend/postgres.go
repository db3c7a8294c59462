package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatline-app/chatline/internal/model"
	"github.com/chatline-app/chatline/pkg/logger"
)

// PostgresStore implements Store over a Postgres database. After every row
// write it publishes a matching change event on the feed, mirroring the
// hosted platform's table-change broadcasts.
type PostgresStore struct {
	db     *gorm.DB
	feed   Feed
	logger *logger.Logger
}

// NewPostgresStore opens the database and runs schema migration.
func NewPostgresStore(dsn string, log *logger.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Participant{},
		&model.Message{},
		&model.TypingStatus{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &PostgresStore{db: db, logger: log}, nil
}

// SetFeed attaches the change feed used to broadcast row writes.
func (s *PostgresStore) SetFeed(feed Feed) {
	s.feed = feed
}

func (s *PostgresStore) publish(ctx context.Context, table, conversationID string, event EventType, row any) {
	if s.feed == nil {
		return
	}
	data, err := json.Marshal(row)
	if err != nil {
		s.logger.Error("failed to encode change event row", zap.String("table", table), zap.Error(err))
		return
	}
	err = s.feed.Publish(ctx, Filter{Table: table, ConversationID: conversationID}, ChangeEvent{
		Table: table,
		Event: event,
		Row:   data,
	})
	if err != nil {
		s.logger.Error("failed to publish change event", zap.String("table", table), zap.Error(err))
	}
}

// ListUsers returns all users in the directory.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("name asc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetUser returns a user by id, or nil if no row exists.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}

// GetUserByEmail returns a user by email, or nil if no row exists.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user row.
func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// ListConversationsForUser returns every conversation the user participates
// in, with participants and their user rows populated.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Preload("Participants.User").
		Order("conversations.created_at desc").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for user: %w", err)
	}
	return s.validConversations(convs), nil
}

// ListConversationsByType returns all conversations of the given type, with
// participants and their user rows populated.
func (s *PostgresStore) ListConversationsByType(ctx context.Context, t model.ConversationType) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := s.db.WithContext(ctx).
		Where("type = ?", t).
		Preload("Participants.User").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations by type: %w", err)
	}
	return s.validConversations(convs), nil
}

// validConversations drops malformed rows rather than trusting their shape.
func (s *PostgresStore) validConversations(convs []model.Conversation) []model.Conversation {
	valid := convs[:0]
	for i := range convs {
		if err := convs[i].Validate(); err != nil {
			s.logger.Warn("dropping malformed conversation row",
				zap.String("conversation_id", convs[i].ID), zap.Error(err))
			continue
		}
		valid = append(valid, convs[i])
	}
	return valid
}

// CreateConversation inserts a conversation row. Participant rows are added
// separately with AddParticipants; the two inserts are not atomic, so a
// failure in between leaves an orphaned conversation with no participants.
func (s *PostgresStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Omit("Participants").Create(c).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	s.publish(ctx, TableConversations, c.ID, EventInsert, c)
	return nil
}

// AddParticipants inserts participant rows for a conversation.
func (s *PostgresStore) AddParticipants(ctx context.Context, conversationID string, userIDs []string) error {
	rows := make([]model.Participant, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, model.Participant{ConversationID: conversationID, UserID: id})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to add participants: %w", err)
	}
	return nil
}

// ListMessages returns the full message history of a conversation, ascending
// by created_at.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	valid := msgs[:0]
	for i := range msgs {
		if err := msgs[i].Validate(); err != nil {
			s.logger.Warn("dropping malformed message row",
				zap.String("message_id", msgs[i].ID), zap.Error(err))
			continue
		}
		valid = append(valid, msgs[i])
	}
	return valid, nil
}

// LatestMessage returns the newest message in a conversation, or nil if the
// conversation has none.
func (s *PostgresStore) LatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	return &msg, nil
}

// CreateMessage inserts a message row and broadcasts the insert on the feed.
func (s *PostgresStore) CreateMessage(ctx context.Context, m *model.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	s.publish(ctx, TableMessages, m.ConversationID, EventInsert, m)
	return nil
}

// GetTypingStatus returns the typing row for (conversation, user), or nil if
// none exists yet.
func (s *PostgresStore) GetTypingStatus(ctx context.Context, conversationID, userID string) (*model.TypingStatus, error) {
	var ts model.TypingStatus
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&ts).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get typing status: %w", err)
	}
	return &ts, nil
}

// UpsertTypingStatus writes the typing row for (conversation, user).
// Concurrent upserts from the same user collapse to last-write-wins through
// the database's native on-conflict update.
func (s *PostgresStore) UpsertTypingStatus(ctx context.Context, ts *model.TypingStatus) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_typing", "updated_at"}),
	}).Create(ts).Error
	if err != nil {
		return fmt.Errorf("failed to upsert typing status: %w", err)
	}
	s.publish(ctx, TableTypingStatus, ts.ConversationID, EventUpdate, ts)
	return nil
}
