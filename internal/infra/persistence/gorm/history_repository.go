// Package gormpersistence implements the history repository on GORM/MySQL.
package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wookja-0/messenger-service/internal/domain"
	"github.com/wookja-0/messenger-service/internal/repository"
)

// GormHistoryRepository is the HistoryRepository implementation backed by the
// relational store shared with the user/room/file services.
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a GormHistoryRepository.
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	if db == nil {
		panic("database connection cannot be nil for GormHistoryRepository")
	}
	return &GormHistoryRepository{db: db}
}

// RoomExists reports whether the room id refers to a known room.
func (r *GormHistoryRepository) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("id = ?", roomID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by id %s: %w", roomID, err)
	}
	return count > 0, nil
}

// GetMembership returns the membership row for (roomID, userID).
func (r *GormHistoryRepository) GetMembership(ctx context.Context, roomID, userID string) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gorm: find membership (room %s, user %s): %w", roomID, userID, err)
	}
	return &membership, nil
}

// TouchLastRead updates last_read_at for the membership row.
func (r *GormHistoryRepository) TouchLastRead(ctx context.Context, roomID, userID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("last_read_at", at)
	if result.Error != nil {
		return fmt.Errorf("gorm: touch last_read_at (room %s, user %s): %w", roomID, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrMembershipNotFound
	}
	return nil
}

// InsertMessage persists a new message row, assigning id and timestamp when
// the caller left them zero.
func (r *GormHistoryRepository) InsertMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Create(msg).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: insert message %s (room %s): %w", msg.ID, msg.RoomID, err)
	}
	return nil
}

// ListRecentMessages returns the last limit messages of the room in ascending
// timestamp order. The query selects newest-first and the slice is reversed
// so the replay is chronological.
func (r *GormHistoryRepository) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list recent messages for room %s: %w", roomID, err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListMembers returns every membership of the room.
func (r *GormHistoryRepository) ListMembers(ctx context.Context, roomID string) ([]domain.Member, error) {
	var rows []domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list members for room %s: %w", roomID, err)
	}
	members := make([]domain.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, domain.Member{UserID: row.UserID, IsAdmin: row.IsAdmin})
	}
	return members, nil
}

// GetUserProfile returns the display profile of a user.
func (r *GormHistoryRepository) GetUserProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var user domain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user %s: %w", userID, err)
	}
	return &domain.Profile{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		AvatarURL: user.ProfileImageURL,
	}, nil
}
