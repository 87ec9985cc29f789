package events

import "time"

// WagerStatus é o payload publicado no canal Redis e repassado aos clientes WebSocket
type WagerStatus struct {
	Wager        string    `json:"wager"`
	State        string    `json:"state"`
	StillWaiting bool      `json:"still_waiting,omitempty"`
	Windows      int       `json:"windows,omitempty"`
	Outcome      *uint8    `json:"outcome,omitempty"`
	Won          bool      `json:"won"`
	Payout       uint64    `json:"payout"`
	Verified     bool      `json:"verified"`
	Reason       string    `json:"reason,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}
