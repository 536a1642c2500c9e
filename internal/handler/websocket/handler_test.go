package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wookja-0/messenger-service/internal/domain"
	"github.com/wookja-0/messenger-service/internal/dto"
	"github.com/wookja-0/messenger-service/internal/hub"
	"github.com/wookja-0/messenger-service/internal/repository/mocks"
	"github.com/wookja-0/messenger-service/internal/service"
)

// startChatServer runs the real upgrade handler, hub and chat service over
// httptest, with a stub standing in for the JWT middleware: the verified
// subject arrives on the context under user_id, taken here from the uid
// query parameter.
func startChatServer(t *testing.T, history *mocks.MockHistoryRepository, presence *mocks.MockPresenceStore) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := hub.NewHub()
	chatService := service.NewChatService(history, presence, registry, service.DefaultHistoryLimit)
	handler := NewHandler(registry, chatService)

	router := gin.New()
	router.GET("/ws/:roomId", func(c *gin.Context) {
		c.Set("user_id", c.Query("uid"))
	}, handler.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialRoom(t *testing.T, srv *httptest.Server, roomID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + roomID + "?uid=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func expectJoin(history *mocks.MockHistoryRepository, presence *mocks.MockPresenceStore, roomID, userID string) {
	history.On("RoomExists", mock.Anything, roomID).Return(true, nil)
	history.On("GetMembership", mock.Anything, roomID, userID).
		Return(&domain.Membership{RoomID: roomID, UserID: userID}, nil)
	history.On("TouchLastRead", mock.Anything, roomID, userID, mock.Anything).Return(nil)
	presence.On("Add", mock.Anything, roomID, userID).Return(nil)
	history.On("ListRecentMessages", mock.Anything, roomID, service.DefaultHistoryLimit).
		Return([]domain.Message{}, nil)
	history.On("ListMembers", mock.Anything, roomID).
		Return([]domain.Member{{UserID: userID}}, nil)
	presence.On("MembersOfRoom", mock.Anything, roomID).
		Return(map[string]struct{}{userID: {}}, nil)
	history.On("GetUserProfile", mock.Anything, userID).
		Return(&domain.Profile{UserID: userID, Username: "alice"}, nil)
	// Teardown runs when the test connection closes.
	presence.On("Remove", mock.Anything, roomID, userID).Return(nil).Maybe()
}

func TestSessionLifecycleOverWebSocket(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)
	expectJoin(history, presence, "room-a", "user-1")
	history.On("InsertMessage", mock.Anything, mock.AnythingOfType("*domain.Message")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Message).ID = "msg-42"
		}).
		Return(nil)

	srv := startChatServer(t, history, presence)
	conn := dialRoom(t, srv, "room-a", "user-1")

	require.NoError(t, conn.WriteJSON(dto.InboundFrame{Type: dto.FrameJoin, UserID: "user-1", Username: "alice"}))

	var replay dto.PreviousMessagesFrame
	require.NoError(t, conn.ReadJSON(&replay))
	assert.Equal(t, dto.FramePreviousMessages, replay.Type)
	assert.Empty(t, replay.Messages)

	var members dto.RoomMembersFrame
	require.NoError(t, conn.ReadJSON(&members))
	assert.Equal(t, dto.FrameRoomMembers, members.Type)
	require.Len(t, members.Members, 1)
	assert.True(t, members.Members[0].IsOnline)

	// An unrecognized frame type is ignored and the session stays up.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "typing"}))
	require.NoError(t, conn.WriteJSON(dto.InboundFrame{Type: dto.FrameMessage, Text: "hello"}))

	var echoed dto.MessageView
	require.NoError(t, conn.ReadJSON(&echoed))
	assert.Equal(t, dto.FrameMessage, echoed.Type)
	assert.Equal(t, "msg-42", echoed.ID, "echo carries the persisted id")
	assert.Equal(t, "hello", echoed.Text)
	assert.Equal(t, "alice", echoed.Username)
}

func TestMessageBeforeJoinIsProtocolError(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)
	srv := startChatServer(t, history, presence)
	conn := dialRoom(t, srv, "room-a", "user-1")

	require.NoError(t, conn.WriteJSON(dto.InboundFrame{Type: dto.FrameMessage, Text: "too early"}))

	var errFrame dto.ErrorFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, dto.FrameError, errFrame.Type)
	assert.Equal(t, "protocol_error", errFrame.Message)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "session ends after a protocol error")
}

func TestMalformedFrameIsProtocolError(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)
	srv := startChatServer(t, history, presence)
	conn := dialRoom(t, srv, "room-a", "user-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var errFrame dto.ErrorFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "protocol_error", errFrame.Message)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestJoinRejectionDeliversErrorFrame(t *testing.T) {
	history := new(mocks.MockHistoryRepository)
	presence := new(mocks.MockPresenceStore)
	history.On("RoomExists", mock.Anything, "room-x").Return(false, nil)
	srv := startChatServer(t, history, presence)
	conn := dialRoom(t, srv, "room-x", "user-1")

	require.NoError(t, conn.WriteJSON(dto.InboundFrame{Type: dto.FrameJoin, UserID: "user-1", Username: "alice"}))

	// The typed error frame reaches the client before the socket closes.
	var errFrame dto.ErrorFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, dto.FrameError, errFrame.Type)
	assert.Equal(t, "room_not_found", errFrame.Message)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
