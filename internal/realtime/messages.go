package realtime

import (
	"encoding/json"
	"errors"
	"math"
)

// Event names carried on the wire.
const (
	EventCurrentPlayers     = "currentPlayers"
	EventNewPlayer          = "newPlayer"
	EventPlayerMovement     = "playerMovement"
	EventPlayerMoved        = "playerMoved"
	EventPlayerDisconnected = "playerDisconnected"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Movement is the payload of an inbound playerMovement.
type Movement struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

var errMalformed = errors.New("malformed message")

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// decodeMovement extracts a finite position from a playerMovement frame.
func decodeMovement(frame []byte) (x, y float64, err error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return 0, 0, errMalformed
	}
	if env.Event != EventPlayerMovement {
		return 0, 0, errMalformed
	}
	var mv Movement
	if err := json.Unmarshal(env.Data, &mv); err != nil {
		return 0, 0, errMalformed
	}
	if mv.X == nil || mv.Y == nil || !finite(*mv.X) || !finite(*mv.Y) {
		return 0, 0, errMalformed
	}
	return *mv.X, *mv.Y, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
