package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Wager: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type  string `json:"type"`
	Wager string `json:"wager"`
}
