package client

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"echosphere/internal/mirror"

	jww "github.com/spf13/jwalterweatherman"
)

// Room is one entry of the sidebar room list.
type Room struct {
	ID           uint
	Name         string
	IsGroup      bool
	Participants []uint
}

// roomDoc is a chatRooms/{id} document. Participant ids may be stored as
// numbers or strings.
type roomDoc struct {
	ID           mirror.ID   `json:"id"`
	Name         string      `json:"name"`
	IsGroup      bool        `json:"isGroup"`
	Participants []mirror.ID `json:"participants"`
}

// RoomList keeps the chatrooms the current user belongs to, keyed by id.
type RoomList struct {
	mu     sync.RWMutex
	userID string
	rooms  map[uint]Room
}

// NewRoomList returns an empty list for userID.
func NewRoomList(userID uint) *RoomList {
	return &RoomList{
		userID: strconv.FormatUint(uint64(userID), 10),
		rooms:  make(map[uint]Room),
	}
}

// Seed loads the HTTP room list.
func (l *RoomList) Seed(rooms []RoomSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range rooms {
		ids := make([]uint, len(r.Participants))
		for i, p := range r.Participants {
			ids[i] = p.ID
		}
		l.rooms[r.ID] = Room{ID: r.ID, Name: r.Name, IsGroup: r.IsGroup, Participants: ids}
	}
}

// Apply folds one chatRooms event into the list and reports whether the
// list changed. Rooms the user no longer belongs to are evicted.
func (l *RoomList) Apply(ev mirror.Event) bool {
	id, err := strconv.ParseUint(ev.Key, 10, 64)
	if err != nil {
		jww.WARN.Printf("room list: ignoring key %q", ev.Key)
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Type == mirror.ChildRemoved {
		return l.evict(uint(id))
	}

	var doc roomDoc
	if err := json.Unmarshal(ev.Value, &doc); err != nil {
		jww.WARN.Printf("room list: undecodable room %s: %v", ev.Key, err)
		return false
	}

	if !l.isMember(doc.Participants) {
		return l.evict(uint(id))
	}

	l.rooms[uint(id)] = Room{
		ID:           uint(id),
		Name:         doc.Name,
		IsGroup:      doc.IsGroup,
		Participants: mirror.IDs(doc.Participants),
	}
	return true
}

func (l *RoomList) isMember(participants []mirror.ID) bool {
	for _, p := range participants {
		if p.String() == l.userID {
			return true
		}
	}
	return false
}

func (l *RoomList) evict(id uint) bool {
	if _, ok := l.rooms[id]; !ok {
		return false
	}
	delete(l.rooms, id)
	return true
}

// Rooms returns the list ordered by id.
func (l *RoomList) Rooms() []Room {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Room, 0, len(l.rooms))
	for _, r := range l.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
