package dto

// Kind descreve a variante no formato da API: {"type":"split","args":[1,2]}
type Kind struct {
	Type string `json:"type"` // straight | split | street | corner | six_line | red | black | even | odd | low | high | dozen | column
	Args []int  `json:"args,omitempty"`
}

type OpenTableRequest struct {
	Seed     uint64 `json:"seed"`
	Mode     string `json:"mode"` // "private" | "public"
	MinStake uint64 `json:"min_stake"`
	MaxStake uint64 `json:"max_stake"`
}

type AmountRequest struct {
	Amount uint64 `json:"amount"`
}

type PlaceWagerRequest struct {
	Table string `json:"table"`
	Kind  Kind   `json:"kind"`
	Stake uint64 `json:"stake"`
}

type ModeRequest struct {
	Mode string `json:"mode"` // "private" | "public"
}
