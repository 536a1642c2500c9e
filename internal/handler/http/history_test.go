package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wookja-0/messenger-service/internal/domain"
	"github.com/wookja-0/messenger-service/internal/dto"
	"github.com/wookja-0/messenger-service/internal/repository"
	"github.com/wookja-0/messenger-service/internal/repository/mocks"
	"github.com/wookja-0/messenger-service/internal/service"
)

const testAdminEmail = "admin@example.com"

// setupRouter builds the history routes with a stub auth layer that injects
// the given requester identity, the way the JWT middleware would.
func setupRouter(history *mocks.MockHistoryRepository, presence *mocks.MockPresenceStore, requester string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewHistoryHandler(service.NewHistoryService(history, presence, testAdminEmail))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", requester)
		c.Next()
	})
	router.GET("/api/rooms/:roomId/messages", handler.GetRoomMessages)
	router.GET("/api/admin/rooms/:roomId/messages", handler.GetAdminRoomMessages)
	router.GET("/api/online-users", handler.GetOnlineUsers)
	return router
}

func perform(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func userProfile(id, email string) *domain.Profile {
	return &domain.Profile{UserID: id, Username: "user-" + id, Email: email}
}

func TestGetRoomMessagesAsMember(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	senderID := "user-2"
	history.On("GetUserProfile", mock.Anything, "user-1").
		Return(userProfile("user-1", "user1@example.com"), nil)
	history.On("GetMembership", mock.Anything, "room-a", "user-1").
		Return(&domain.Membership{RoomID: "room-a", UserID: "user-1"}, nil)
	history.On("ListRecentMessages", mock.Anything, "room-a", 100).
		Return([]domain.Message{{
			ID:        "msg-1",
			RoomID:    "room-a",
			UserID:    &senderID,
			Username:  "bob",
			Text:      "hello",
			Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		}}, nil)
	history.On("GetUserProfile", mock.Anything, senderID).
		Return(&domain.Profile{UserID: senderID, Username: "bob", AvatarURL: "https://cdn/bob.png"}, nil)

	router := setupRouter(history, presence, "user-1")
	w := perform(router, "/api/rooms/room-a/messages")

	require.Equal(t, http.StatusOK, w.Code)
	var views []dto.MessageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "msg-1", views[0].ID)
	assert.Equal(t, "hello", views[0].Text)
	assert.Equal(t, "https://cdn/bob.png", views[0].ProfileImageURL)
}

func TestGetRoomMessagesRejectsNonMember(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	history.On("GetUserProfile", mock.Anything, "user-1").
		Return(userProfile("user-1", "user1@example.com"), nil)
	history.On("GetMembership", mock.Anything, "room-a", "user-1").
		Return(nil, repository.ErrNotFound)

	router := setupRouter(history, presence, "user-1")
	w := perform(router, "/api/rooms/room-a/messages")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, w.Body.String())
	history.AssertNotCalled(t, "ListRecentMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetRoomMessagesAdminBypassesMembership(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	history.On("GetUserProfile", mock.Anything, "admin-1").
		Return(userProfile("admin-1", testAdminEmail), nil)
	history.On("ListRecentMessages", mock.Anything, "room-a", 100).
		Return([]domain.Message{}, nil)

	router := setupRouter(history, presence, "admin-1")
	w := perform(router, "/api/rooms/room-a/messages")

	assert.Equal(t, http.StatusOK, w.Code)
	history.AssertNotCalled(t, "GetMembership", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetRoomMessagesRejectsImpersonation(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	router := setupRouter(history, presence, "user-1")
	w := perform(router, "/api/rooms/room-a/messages?user_id=user-2")

	assert.Equal(t, http.StatusForbidden, w.Code)
	history.AssertNotCalled(t, "ListRecentMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetAdminRoomMessagesRejectsNonAdmin(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	history.On("GetUserProfile", mock.Anything, "user-1").
		Return(userProfile("user-1", "user1@example.com"), nil)

	router := setupRouter(history, presence, "user-1")
	w := perform(router, "/api/admin/rooms/room-a/messages")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetAdminRoomMessagesUnknownRoom(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	history.On("GetUserProfile", mock.Anything, "admin-1").
		Return(userProfile("admin-1", testAdminEmail), nil)
	history.On("RoomExists", mock.Anything, "room-missing").Return(false, nil)

	router := setupRouter(history, presence, "admin-1")
	w := perform(router, "/api/admin/rooms/room-missing/messages")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"room_not_found"}`, w.Body.String())
}

func TestGetAdminRoomMessagesHonorsLimit(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	history.On("GetUserProfile", mock.Anything, "admin-1").
		Return(userProfile("admin-1", testAdminEmail), nil)
	history.On("RoomExists", mock.Anything, "room-a").Return(true, nil)
	history.On("ListRecentMessages", mock.Anything, "room-a", 25).
		Return([]domain.Message{}, nil)

	router := setupRouter(history, presence, "admin-1")
	w := perform(router, "/api/admin/rooms/room-a/messages?limit=25")

	assert.Equal(t, http.StatusOK, w.Code)
	history.AssertCalled(t, "ListRecentMessages", mock.Anything, "room-a", 25)
}

func TestGetOnlineUsers(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	presence.On("OnlineUserIDs", mock.Anything).
		Return([]string{"user-1", "user-gone"}, nil)
	presence.On("RoomsOfUser", mock.Anything, "user-1").
		Return([]string{"room-a", "room-b"}, nil)
	presence.On("RoomsOfUser", mock.Anything, "user-gone").
		Return([]string{"room-a"}, nil)
	history.On("GetUserProfile", mock.Anything, "user-1").
		Return(userProfile("user-1", "user1@example.com"), nil)
	// Presence records can outlive deleted accounts until expiry.
	history.On("GetUserProfile", mock.Anything, "user-gone").
		Return(nil, repository.ErrNotFound)

	router := setupRouter(history, presence, "user-1")
	w := perform(router, "/api/online-users")

	require.Equal(t, http.StatusOK, w.Code)
	var summary []dto.OnlineUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.Len(t, summary, 1)
	assert.Equal(t, "user-1", summary[0].ID)
	assert.ElementsMatch(t, []string{"room-a", "room-b"}, summary[0].Rooms)
}

func TestGetOnlineUsersStoreFailure(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)

	presence.On("OnlineUserIDs", mock.Anything).
		Return(nil, errors.New("redis down"))

	router := setupRouter(history, presence, "user-1")
	w := perform(router, "/api/online-users")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
