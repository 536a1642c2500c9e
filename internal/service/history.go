package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wookja-0/messenger-service/internal/domain"
	"github.com/wookja-0/messenger-service/internal/dto"
	"github.com/wookja-0/messenger-service/internal/repository"
)

// HistoryService answers the plain request/response queries of the gateway:
// room history and the online summary.
type HistoryService struct {
	history    repository.HistoryRepository
	presence   repository.PresenceStore
	adminEmail string
}

// NewHistoryService creates a HistoryService. adminEmail identifies the
// administrative account allowed to bypass membership checks; empty disables
// the bypass.
func NewHistoryService(history repository.HistoryRepository, presence repository.PresenceStore, adminEmail string) *HistoryService {
	if history == nil {
		panic("HistoryRepository cannot be nil for HistoryService")
	}
	if presence == nil {
		panic("PresenceStore cannot be nil for HistoryService")
	}
	return &HistoryService{history: history, presence: presence, adminEmail: adminEmail}
}

// isAdmin reports whether the requester is the administrative identity.
func (s *HistoryService) isAdmin(ctx context.Context, userID string) bool {
	if s.adminEmail == "" {
		return false
	}
	profile, err := s.history.GetUserProfile(ctx, userID)
	if err != nil {
		return false
	}
	return profile.Email == s.adminEmail
}

// GetHistory returns the most recent limit messages of the room, oldest to
// newest, after verifying the requester's membership. The administrative
// identity bypasses the membership check.
func (s *HistoryService) GetHistory(ctx context.Context, roomID, requesterID string, limit int) ([]dto.MessageView, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if !s.isAdmin(ctx, requesterID) {
		if _, err := s.history.GetMembership(ctx, roomID, requesterID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrForbidden
			}
			logrus.WithError(err).Error("Failed to check membership for history query")
			return nil, ErrInternal
		}
	}
	return s.renderRecent(ctx, roomID, limit)
}

// GetAdminHistory returns up to limit messages of any room for the
// administrative identity, oldest to newest.
func (s *HistoryService) GetAdminHistory(ctx context.Context, roomID, requesterID string, limit int) ([]dto.MessageView, error) {
	if !s.isAdmin(ctx, requesterID) {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = 500
	}
	exists, err := s.history.RoomExists(ctx, roomID)
	if err != nil {
		logrus.WithError(err).Error("Failed to check room existence for admin history")
		return nil, ErrInternal
	}
	if !exists {
		return nil, ErrRoomNotFound
	}
	return s.renderRecent(ctx, roomID, limit)
}

func (s *HistoryService) renderRecent(ctx context.Context, roomID string, limit int) ([]dto.MessageView, error) {
	messages, err := s.history.ListRecentMessages(ctx, roomID, limit)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to list messages")
		return nil, ErrInternal
	}
	avatars := make(map[string]string)
	views := make([]dto.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, renderHistoryMessage(ctx, s.history, msg, avatars))
	}
	return views, nil
}

func renderHistoryMessage(ctx context.Context, history repository.HistoryRepository, msg domain.Message, avatars map[string]string) dto.MessageView {
	avatarURL := ""
	if msg.UserID != nil && *msg.UserID != "" {
		cached, ok := avatars[*msg.UserID]
		if !ok {
			if profile, err := history.GetUserProfile(ctx, *msg.UserID); err == nil {
				cached = profile.AvatarURL
			}
			avatars[*msg.UserID] = cached
		}
		avatarURL = cached
	}
	view := dto.MessageView{
		ID:              msg.ID,
		UserID:          msg.UserID,
		Username:        msg.Username,
		Text:            msg.Text,
		Timestamp:       msg.Timestamp.UTC().Format(time.RFC3339Nano),
		SocketID:        msg.ConnectionID,
		ProfileImageURL: avatarURL,
	}
	if msg.FileInfo != "" {
		view.FileInfo = json.RawMessage(msg.FileInfo)
	}
	return view
}

// GetOnlineSummary lists every user with a live presence record together
// with the rooms they are online in, by scanning the presence store's
// user-keyed index.
func (s *HistoryService) GetOnlineSummary(ctx context.Context) ([]dto.OnlineUser, error) {
	userIDs, err := s.presence.OnlineUserIDs(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to scan online users")
		return nil, ErrInternal
	}
	summary := make([]dto.OnlineUser, 0, len(userIDs))
	for _, userID := range userIDs {
		rooms, err := s.presence.RoomsOfUser(ctx, userID)
		if err != nil || len(rooms) == 0 {
			continue
		}
		profile, err := s.history.GetUserProfile(ctx, userID)
		if err != nil {
			// Presence outlives deleted accounts until expiry; skip them.
			continue
		}
		summary = append(summary, dto.OnlineUser{
			ID:       userID,
			Username: profile.Username,
			Rooms:    rooms,
		})
	}
	return summary, nil
}
