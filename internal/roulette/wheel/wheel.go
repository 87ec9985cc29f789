// Package wheel avalia apostas de roleta europeia (0..36) sem efeitos colaterais.
package wheel

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
)

const (
	Pockets   = 37
	MaxNumber = 36
)

var (
	ErrInvalidWager   = errors.New("invalid wager")
	ErrPayoutOverflow = errors.New("payout overflow")
)

// conjunto fixo da roda; não é derivável por fórmula
var red = [Pockets]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true, 18: true,
	19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

func IsRed(n uint8) bool { return int(n) < Pockets && red[n] }

// Multiplier devolve o multiplicador líquido pago pela variante
func Multiplier(kind codec.WagerKind) (uint16, error) {
	switch kind.Tag {
	case codec.TagStraight:
		return 35, nil
	case codec.TagSplit:
		return 17, nil
	case codec.TagStreet:
		return 11, nil
	case codec.TagCorner:
		return 8, nil
	case codec.TagSixLine:
		return 5, nil
	case codec.TagRed, codec.TagBlack, codec.TagEven, codec.TagOdd, codec.TagLow, codec.TagHigh:
		return 1, nil
	case codec.TagDozen, codec.TagColumn:
		return 2, nil
	}
	return 0, kind.Err()
}

// Validate aplica as mesmas regras de colocação que o programa aplica
func Validate(kind codec.WagerKind) error {
	if err := kind.Err(); err != nil {
		return err
	}
	a, b := kind.Args[0], kind.Args[1]
	ok := true
	switch kind.Tag {
	case codec.TagStraight:
		ok = a <= MaxNumber
	case codec.TagSplit:
		ok = a != 0 && b != 0 && a <= MaxNumber && b <= MaxNumber && a != b && adjacent(a, b)
	case codec.TagStreet:
		ok = a >= 1 && a <= 12
	case codec.TagCorner:
		ok = a >= 1 && a <= 11 && b >= 1 && b <= 2
	case codec.TagSixLine:
		ok = a >= 1 && a <= 11
	case codec.TagDozen, codec.TagColumn:
		ok = a >= 1 && a <= 3
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidWager, kind)
	}
	return nil
}

// rowCol posiciona n (1..36) no tabuleiro de 12 linhas por 3 colunas
func rowCol(n uint8) (int, int) {
	i := int(n) - 1
	return i/3 + 1, i%3 + 1
}

func adjacent(a, b uint8) bool {
	ra, ca := rowCol(a)
	rb, cb := rowCol(b)
	return (ra == rb && abs(ca-cb) == 1) || (ca == cb && abs(ra-rb) == 1)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Covers decide se o número sorteado satisfaz a aposta. O zero só é coberto por Straight(0).
func Covers(kind codec.WagerKind, outcome uint8) bool {
	n := int(outcome)
	if n > MaxNumber {
		return false
	}
	a, b := int(kind.Args[0]), int(kind.Args[1])
	if kind.Tag == codec.TagStraight {
		return n == a
	}
	if n == 0 {
		return false
	}
	switch kind.Tag {
	case codec.TagSplit:
		return n == a || n == b
	case codec.TagStreet:
		return n >= 3*a-2 && n <= 3*a
	case codec.TagCorner:
		tl := (a-1)*3 + b
		return n == tl || n == tl+1 || n == tl+3 || n == tl+4
	case codec.TagSixLine:
		return n >= 3*a-2 && n <= 3*a+3
	case codec.TagRed:
		return red[n]
	case codec.TagBlack:
		return !red[n]
	case codec.TagEven:
		return n%2 == 0
	case codec.TagOdd:
		return n%2 == 1
	case codec.TagLow:
		return n <= 18
	case codec.TagHigh:
		return n >= 19
	case codec.TagDozen:
		return n >= 12*(a-1)+1 && n <= 12*a
	case codec.TagColumn:
		return (n-1)%3+1 == a
	}
	return false
}

// Payout devolve stake × (multiplier + 1) quando coberto, 0 caso contrário.
// Sempre re-derivado; nunca lido de estado persistido. Estouro só aparece com
// conta corrompida, já que MaxPayout barra a aposta antes de colocá-la.
func Payout(stake uint64, multiplier uint16, covered bool) (uint64, error) {
	if !covered {
		return 0, nil
	}
	return MaxPayout(stake, multiplier)
}

// MaxPayout é o passivo travado pela aposta: stake × (multiplier + 1)
func MaxPayout(stake uint64, multiplier uint16) (uint64, error) {
	hi, lo := bits.Mul64(stake, uint64(multiplier)+1)
	if hi != 0 {
		return 0, fmt.Errorf("%w: stake %d multiplier %d", ErrPayoutOverflow, stake, multiplier)
	}
	return lo, nil
}

// Grade combina cobertura e pagamento para uma aposta liquidada
func Grade(kind codec.WagerKind, stake uint64, multiplier uint16, outcome uint8) (bool, uint64, error) {
	covered := Covers(kind, outcome)
	payout, err := Payout(stake, multiplier, covered)
	return covered, payout, err
}

// Outcome reproduz o sorteio do programa: u128 little-endian dos 16 primeiros bytes mod 37
func Outcome(randomness [64]byte) uint8 {
	var lo, hi uint64
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(randomness[i])
		hi = hi<<8 | uint64(randomness[i+8])
	}
	return uint8(bits.Rem64(hi, lo, Pockets))
}
