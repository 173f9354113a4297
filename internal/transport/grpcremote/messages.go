package grpcremote

import "chatsync/pkg/chatsync"

const (
	methodListRooms       = "/tcpchat.Chat/ListRooms"
	methodListMessages    = "/tcpchat.Chat/ListMessages"
	methodLookupUser      = "/tcpchat.Chat/LookupUser"
	methodLookupRoom      = "/tcpchat.Chat/LookupRoom"
	methodSendMessage     = "/tcpchat.Chat/SendMessage"
	methodSubscribeToUser = "/tcpchat.Chat/SubscribeToUser"
	methodSubscribeToRoom = "/tcpchat.Chat/SubscribeToRoom"
	methodLoginAsUser     = "/tcpchat.Registry/LoginAsUser"
)

type listRoomsRequest struct{}

type listRoomsResponse struct {
	Rooms []chatsync.WireRoom `json:"rooms"`
}

type listMessagesRequest struct {
	RoomID chatsync.WireID `json:"room_id"`
}

type listMessagesResponse struct {
	Messages []chatsync.WireMessage `json:"messages"`
}

type lookupUserRequest struct {
	UserID chatsync.WireID `json:"user_id"`
}

type lookupUserResponse struct {
	User chatsync.WireUser `json:"user"`
}

type lookupRoomRequest struct {
	RoomID chatsync.WireID `json:"room_id"`
}

type lookupRoomResponse struct {
	Room chatsync.WireRoom `json:"room"`
}

type sendMessageRequest struct {
	RoomID chatsync.WireID `json:"room_id"`
	Text   string          `json:"text"`
}

type sendMessageResponse struct{}

type subscribeToUserRequest struct{}

type subscribeToRoomRequest struct {
	RoomID chatsync.WireID `json:"room_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID chatsync.WireID `json:"user_id,omitempty"`
	Token  string          `json:"token"`
}
