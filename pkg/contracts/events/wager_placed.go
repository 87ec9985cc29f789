package events

import "time"

// Evento publicado no tópico "wager_placed" depois que a aposta foi aceita pela rede
type WagerPlaced struct {
	EventID    string    `json:"event_id"`
	Wager      string    `json:"wager"`      // endereço da conta de aposta
	Table      string    `json:"table"`      // endereço da mesa
	Player     string    `json:"player"`     // carteira que assinou
	Randomness string    `json:"randomness"` // conta de requisição do VRF
	BetSeq     uint64    `json:"bet_seq"`
	Kind       string    `json:"kind"` // ex: "straight(17)"
	Stake      uint64    `json:"stake"`
	Multiplier uint16    `json:"multiplier"`
	MaxPayout  uint64    `json:"max_payout"`
	Signature  string    `json:"signature"`
	PlacedAt   time.Time `json:"placed_at"`
}
