package protocol

import "errors"

// Pré-condições checadas antes de qualquer submissão. Nunca re-tentadas.
var (
	ErrInvalidBounds         = errors.New("invalid stake bounds")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrStakeOutOfRange       = errors.New("stake out of range")
	ErrInvalidWager          = errors.New("invalid wager")
	ErrTablePaused           = errors.New("table paused")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrLiabilityLocked       = errors.New("liability locked")
	ErrWithdrawDelay         = errors.New("withdraw delay not elapsed")
	ErrNotExpired            = errors.New("wager not expired")
	ErrWagerClosed           = errors.New("wager already closed")
	ErrInvalidMode           = errors.New("invalid table mode")
)

// Condições esperadas em regime normal; o orquestrador re-tenta
var (
	ErrRandomnessNotReady = errors.New("randomness not ready")
	ErrStaleSequence      = errors.New("stale bet sequence")
	ErrNotVisible         = errors.New("transaction not yet visible")
)

// Retryable indica as condições que o laço do orquestrador absorve
func Retryable(err error) bool {
	return errors.Is(err, ErrRandomnessNotReady) ||
		errors.Is(err, ErrStaleSequence) ||
		errors.Is(err, ErrNotVisible)
}
