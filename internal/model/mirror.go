package model

// Collections of the realtime mirror tree.
const (
	MirrorChatRooms = "chatRooms"
	MirrorMessages  = "messages"
	MirrorUsers     = "users"

	// MirrorRoomField is the message field room feeds filter on.
	MirrorRoomField = "chatRoomId"
	// MirrorParticipantsField lists the members of a chatroom document.
	MirrorParticipantsField = "participants"
)

// MirrorChatRoom is the document stored at chatRooms/{id}.
type MirrorChatRoom struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Participants []uint `json:"participants"`
	IsGroup      bool   `json:"isGroup"`
}

// MirrorMessage is the document stored at messages/{id}. Read exists only
// on the mirror side.
type MirrorMessage struct {
	ID         uint   `json:"id"`
	Content    string `json:"content"`
	SenderID   uint   `json:"senderId"`
	ChatRoomID uint   `json:"chatRoomId"`
	Read       bool   `json:"read"`
}

// MirrorUser is the document stored at users/{id}.
type MirrorUser struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func NewMirrorChatRoom(room *ChatRoom) MirrorChatRoom {
	return MirrorChatRoom{
		ID:           room.ID,
		Name:         room.Name,
		Participants: room.ParticipantIDs(),
		IsGroup:      room.IsGroup,
	}
}

func NewMirrorMessage(msg *Message) MirrorMessage {
	return MirrorMessage{
		ID:         msg.ID,
		Content:    msg.Content,
		SenderID:   msg.SenderID,
		ChatRoomID: msg.ChatRoomID,
		Read:       false,
	}
}
