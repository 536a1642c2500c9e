package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wookja-0/messenger-service/internal/domain"
	"github.com/wookja-0/messenger-service/internal/dto"
	"github.com/wookja-0/messenger-service/internal/hub"
	"github.com/wookja-0/messenger-service/internal/repository"
)

// DefaultHistoryLimit is the number of messages replayed on join.
const DefaultHistoryLimit = 100

// ChatService implements the room session protocol on top of the hub, the
// history repository and the presence store. It is the hub.SessionHandler
// used by every connection.
type ChatService struct {
	history      repository.HistoryRepository
	presence     repository.PresenceStore
	registry     *hub.Hub
	historyLimit int
}

// NewChatService creates a ChatService.
func NewChatService(history repository.HistoryRepository, presence repository.PresenceStore, registry *hub.Hub, historyLimit int) *ChatService {
	if history == nil {
		panic("HistoryRepository cannot be nil for ChatService")
	}
	if presence == nil {
		panic("PresenceStore cannot be nil for ChatService")
	}
	if registry == nil {
		panic("Hub cannot be nil for ChatService")
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &ChatService{
		history:      history,
		presence:     presence,
		registry:     registry,
		historyLimit: historyLimit,
	}
}

// Join validates the join request and, only after every check passed, mutates
// presence and registry state, replays history and announces the updated
// member list. Validation failures leave no trace behind.
//
// The room is always the connection's path segment; the payload's user_id
// must agree with the token identity the gateway verified.
func (s *ChatService) Join(ctx context.Context, c *hub.Client, frame dto.InboundFrame) error {
	roomID := c.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": frame.UserID,
		"conn_id": c.ID(),
	})

	if frame.UserID == "" || frame.UserID != c.AuthUserID() {
		logCtx.WithField("auth_user_id", c.AuthUserID()).Warn("Join identity does not match token")
		return ErrForbidden
	}
	username := frame.Username
	if username == "" {
		username = "anonymous"
	}

	exists, err := s.history.RoomExists(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to check room existence")
		return ErrInternal
	}
	if !exists {
		logCtx.Warn("Join rejected: room not found")
		return ErrRoomNotFound
	}

	if _, err := s.history.GetMembership(ctx, roomID, frame.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logCtx.Warn("Join rejected: not a member")
			return ErrForbidden
		}
		logCtx.WithError(err).Error("Failed to check membership")
		return ErrInternal
	}

	// Non-fatal bookkeeping: the join stands even when these fail.
	if err := s.history.TouchLastRead(ctx, roomID, frame.UserID, time.Now().UTC()); err != nil {
		logCtx.WithError(err).Warn("Failed to touch last_read_at")
	}
	if err := s.presence.Add(ctx, roomID, frame.UserID); err != nil {
		logCtx.WithError(err).Warn("Presence add failed, continuing without presence")
	}

	c.MarkJoined(frame.UserID, username)
	s.registry.Register(c)

	replay, err := s.recentMessageViews(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load history for replay")
		return ErrInternal
	}
	c.SendJSON(dto.NewPreviousMessages(replay))

	members, err := s.memberViews(ctx, roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load member list")
		return ErrInternal
	}
	c.SendJSON(dto.NewRoomMembers(members))

	if payload, err := json.Marshal(dto.NewRoomMembers(members)); err == nil {
		s.registry.Broadcast(roomID, payload, c.ID())
	}

	logCtx.Info("Client joined room")
	return nil
}

// Message persists one chat message and fans it out to the whole room,
// sender included; the echo confirms persistence and carries the assigned id
// and timestamp. A failed insert aborts this message only and is reported to
// the sender alone.
func (s *ChatService) Message(ctx context.Context, c *hub.Client, frame dto.InboundFrame) {
	roomID := c.RoomID()
	userID := c.UserID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
		"conn_id": c.ID(),
	})

	msg := &domain.Message{
		RoomID:       roomID,
		UserID:       &userID,
		Username:     c.Username(),
		Text:         frame.Text,
		Timestamp:    time.Now().UTC(),
		ConnectionID: c.ID(),
	}
	msg.SetFileInfo(frame.FileInfo)

	if err := s.history.InsertMessage(ctx, msg); err != nil {
		logCtx.WithError(err).Error("Failed to persist message")
		c.SendJSON(dto.NewError(ErrPersistence.Error()))
		return
	}

	view := s.messageView(ctx, *msg)
	view.Type = dto.FrameMessage
	payload, err := json.Marshal(view)
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal message frame")
		return
	}
	// Persisted strictly before this point, so fan-out order equals
	// persistence-commit order within the room.
	s.registry.Broadcast(roomID, payload, "")
}

// Leave removes the session from presence and from the registry. It is a
// no-op for sessions that never completed a join, and safe to call more than
// once. Presence removal is best-effort: if the store is unreachable the
// in-memory unregister still proceeds and presence self-heals via expiry.
func (s *ChatService) Leave(ctx context.Context, c *hub.Client) {
	if !c.Joined() {
		return
	}
	roomID := c.RoomID()
	userID := c.UserID()

	if err := s.presence.Remove(ctx, roomID, userID); err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": userID,
		}).WithError(err).Warn("Presence remove failed, relying on expiry")
	}
	s.registry.Unregister(roomID, c.ID())
}

// recentMessageViews renders the last historyLimit messages of the room in
// chronological order, resolving sender avatars with one lookup per distinct
// user.
func (s *ChatService) recentMessageViews(ctx context.Context, roomID string) ([]dto.MessageView, error) {
	messages, err := s.history.ListRecentMessages(ctx, roomID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	avatars := make(map[string]string)
	views := make([]dto.MessageView, 0, len(messages))
	for _, msg := range messages {
		view := s.renderMessage(msg, s.avatarFor(ctx, msg.UserID, avatars))
		views = append(views, view)
	}
	return views, nil
}

// messageView renders a single live message with its sender avatar.
func (s *ChatService) messageView(ctx context.Context, msg domain.Message) dto.MessageView {
	avatars := make(map[string]string)
	return s.renderMessage(msg, s.avatarFor(ctx, msg.UserID, avatars))
}

func (s *ChatService) renderMessage(msg domain.Message, avatarURL string) dto.MessageView {
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

// avatarFor resolves a sender's avatar URL, caching per call and failing
// open to an empty URL for deleted or unreadable users.
func (s *ChatService) avatarFor(ctx context.Context, userID *string, cache map[string]string) string {
	if userID == nil || *userID == "" {
		return ""
	}
	if avatarURL, ok := cache[*userID]; ok {
		return avatarURL
	}
	profile, err := s.history.GetUserProfile(ctx, *userID)
	if err != nil {
		cache[*userID] = ""
		return ""
	}
	cache[*userID] = profile.AvatarURL
	return profile.AvatarURL
}

// memberViews joins the durable membership list with the live presence set.
// A dead presence store degrades to everyone-offline rather than failing the
// join.
func (s *ChatService) memberViews(ctx context.Context, roomID string) ([]dto.MemberView, error) {
	members, err := s.history.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	online, err := s.presence.MembersOfRoom(ctx, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Presence lookup failed, reporting members offline")
		online = map[string]struct{}{}
	}
	views := make([]dto.MemberView, 0, len(members))
	for _, member := range members {
		profile, err := s.history.GetUserProfile(ctx, member.UserID)
		if err != nil {
			// Deleted account still in the membership table; skip it.
			continue
		}
		_, isOnline := online[member.UserID]
		views = append(views, dto.MemberView{
			ID:       member.UserID,
			Email:    profile.Email,
			Username: profile.Username,
			IsAdmin:  member.IsAdmin,
			IsOnline: isOnline,
		})
	}
	return views, nil
}
