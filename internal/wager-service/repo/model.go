package repo

import "time"

// Wager é a linha do journal no Postgres. É um cache do estado on-chain:
// o payout nunca é gravado, sempre recalculado a partir da conta.
type Wager struct {
	Address    string
	Table      string
	Player     string
	Randomness string
	BetSeq     uint64
	Kind       string
	Stake      uint64
	Status     string
	Reason     string
	Signature  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Transition registra uma mudança de estado observada
type Transition struct {
	ID        string
	Wager     string
	OldStatus string
	NewStatus string
	Reason    string
	CreatedAt time.Time
}
