// Package wire defines the JSON frames exchanged on the realtime
// websocket between client processes and the hub.
package wire

import (
	"encoding/json"
	"fmt"

	"tableside/internal/domain"
)

// Frame types.
const (
	TypeRequest = "request"
	TypeAck     = "ack"
	TypeEvent   = "event"
)

// Frame is a single websocket text message. Requests carry an ID that the
// matching ack echoes. Events list the rooms of the receiving connection
// they were published to.
type Frame struct {
	Type  string          `json:"type"`
	ID    uint64          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Rooms []string        `json:"rooms,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack answers a request.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Room    string `json:"room,omitempty"`
}

// RoomRequest is the payload of every join/leave request.
type RoomRequest struct {
	ID string `json:"id"`
}

// Request names.
const (
	JoinBranchRoom   = "joinBranchRoom"
	LeaveBranchRoom  = "leaveBranchRoom"
	JoinOrderRoom    = "joinOrderRoom"
	LeaveOrderRoom   = "leaveOrderRoom"
	JoinSessionRoom  = "joinSessionRoom"
	LeaveSessionRoom = "leaveSessionRoom"
)

var joinNames = map[domain.RoomKind]string{
	domain.RoomBranch:  JoinBranchRoom,
	domain.RoomOrder:   JoinOrderRoom,
	domain.RoomSession: JoinSessionRoom,
}

var leaveNames = map[domain.RoomKind]string{
	domain.RoomBranch:  LeaveBranchRoom,
	domain.RoomOrder:   LeaveOrderRoom,
	domain.RoomSession: LeaveSessionRoom,
}

// JoinName returns the request name that joins a room of the given kind.
func JoinName(kind domain.RoomKind) string { return joinNames[kind] }

// LeaveName returns the request name that leaves a room of the given kind.
func LeaveName(kind domain.RoomKind) string { return leaveNames[kind] }

// ParseRequest maps a request name back to its room kind and direction.
func ParseRequest(name string) (kind domain.RoomKind, join bool, err error) {
	for k, n := range joinNames {
		if n == name {
			return k, true, nil
		}
	}
	for k, n := range leaveNames {
		if n == name {
			return k, false, nil
		}
	}
	return "", false, fmt.Errorf("unknown request %q", name)
}

func Encode(f Frame) ([]byte, error) { return json.Marshal(f) }

func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, err
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("frame without type")
	}
	return f, nil
}
