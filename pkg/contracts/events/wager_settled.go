package events

import "time"

// Evento emitido pelo settlement-worker quando a aposta chega a um estado terminal.
// Payout nunca vem do banco: é sempre recalculado a partir da conta on-chain.
type WagerSettled struct {
	EventID   string    `json:"event_id"`
	Wager     string    `json:"wager"`
	Status    string    `json:"status"` // "SETTLED" | "EXPIRED" | "FAILED"
	Outcome   *uint8    `json:"outcome,omitempty"`
	Won       bool      `json:"won"`
	Payout    uint64    `json:"payout"`
	Verified  bool      `json:"verified"`
	Reason    string    `json:"reason,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Ts        time.Time `json:"ts"`
}
