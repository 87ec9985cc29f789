package topics

const (
	// Wagers
	WagerPlaced  = "wager_placed"
	WagerSettled = "wager_settled"

	// DLQs
	WagerPlacedDLQ = "wager_placed_dlq"

	// Redis Pub/Sub
	WagerStatusChannel = "wager_status_broadcast"
)
