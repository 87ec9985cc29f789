package dto

import "time"

type OpenTableResponse struct {
	Table string `json:"table"`
}

type Liquidity struct {
	Global       string `json:"global"`
	Vault        string `json:"vault"`
	VaultBalance uint64 `json:"vault_balance"`
	Locked       uint64 `json:"locked"`
	Available    uint64 `json:"available"`
	ActiveBets   uint64 `json:"active_bets"`
}

type TableResponse struct {
	Table                 string     `json:"table"`
	Creator               string     `json:"creator"`
	Operator              string     `json:"operator"`
	Mode                  string     `json:"mode"`
	Paused                bool       `json:"paused"`
	MinStake              uint64     `json:"min_stake"`
	MaxStake              uint64     `json:"max_stake"`
	BetSeq                uint64     `json:"bet_seq"`
	ActiveBets            uint32     `json:"active_bets"`
	LockedLiability       uint64     `json:"locked_liability"`
	WithdrawRequestAmount uint64     `json:"withdraw_request_amount,omitempty"`
	WithdrawReadyAt       *time.Time `json:"withdraw_ready_at,omitempty"`
	Liquidity             *Liquidity `json:"liquidity,omitempty"`
}

type SignatureResponse struct {
	Signature string `json:"signature"`
}

type WithdrawResponse struct {
	Phase     string     `json:"phase"` // requested | executed
	Signature string     `json:"signature"`
	ReadyAt   *time.Time `json:"ready_at,omitempty"`
}

type PlaceWagerResponse struct {
	Wager      string `json:"wager"`
	Randomness string `json:"randomness"`
	BetSeq     uint64 `json:"bet_seq"`
	Multiplier uint16 `json:"multiplier"`
	MaxPayout  uint64 `json:"max_payout"`
	Signature  string `json:"signature"`
	Status     string `json:"status"` // AWAITING_RANDOMNESS
}

// WagerResponse junta o status do journal com a leitura on-chain.
// Outcome/Won/Payout só aparecem para apostas liquidadas.
type WagerResponse struct {
	Wager      string    `json:"wager"`
	Table      string    `json:"table"`
	Player     string    `json:"player"`
	Randomness string    `json:"randomness"`
	Kind       string    `json:"kind"`
	Stake      uint64    `json:"stake"`
	Multiplier uint16    `json:"multiplier"`
	MaxPayout  uint64    `json:"max_payout"`
	State      string    `json:"state"`
	Status     string    `json:"status,omitempty"`
	Outcome    *uint8    `json:"outcome,omitempty"`
	Won        *bool     `json:"won,omitempty"`
	Payout     *uint64   `json:"payout,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type SettleResponse struct {
	Wager        string `json:"wager"`
	Status       string `json:"status"`
	StillWaiting bool   `json:"still_waiting,omitempty"`
	Outcome      *uint8 `json:"outcome,omitempty"`
	Won          bool   `json:"won"`
	Payout       uint64 `json:"payout"`
	Verified     bool   `json:"verified"`
	Signature    string `json:"signature,omitempty"`
}

type ReclaimResponse struct {
	Wager     string `json:"wager"`
	Refunded  uint64 `json:"refunded"`
	Signature string `json:"signature,omitempty"`
	Already   bool   `json:"already_reclaimed,omitempty"`
}

type GovResponse struct {
	Table      string `json:"table"`
	Depositor  string `json:"depositor"`
	Amount     uint64 `json:"amount"`
	IsOperator bool   `json:"is_operator"`
	Threshold  uint64 `json:"threshold"`
}

type TransitionResponse struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

type HistoryResponse struct {
	Wager       string               `json:"wager"`
	Transitions []TransitionResponse `json:"transitions"`
}
