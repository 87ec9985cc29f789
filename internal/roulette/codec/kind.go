package codec

import (
	"fmt"
	"strings"
)

// KindTag é a tag de 1 byte que identifica a variante de aposta
type KindTag uint8

const (
	TagStraight KindTag = iota
	TagSplit
	TagStreet
	TagCorner
	TagSixLine
	TagRed
	TagBlack
	TagEven
	TagOdd
	TagLow
	TagHigh
	TagDozen
	TagColumn
)

// Tabela autoritativa tag -> tamanho do payload
var payloadLen = [...]int{
	TagStraight: 1,
	TagSplit:    2,
	TagStreet:   1,
	TagCorner:   2,
	TagSixLine:  1,
	TagRed:      0,
	TagBlack:    0,
	TagEven:     0,
	TagOdd:      0,
	TagLow:      0,
	TagHigh:     0,
	TagDozen:    1,
	TagColumn:   1,
}

var tagNames = [...]string{
	TagStraight: "straight",
	TagSplit:    "split",
	TagStreet:   "street",
	TagCorner:   "corner",
	TagSixLine:  "six_line",
	TagRed:      "red",
	TagBlack:    "black",
	TagEven:     "even",
	TagOdd:      "odd",
	TagLow:      "low",
	TagHigh:     "high",
	TagDozen:    "dozen",
	TagColumn:   "column",
}

// PayloadLen devolve o tamanho fixo do payload da variante.
// Tag desconhecida cai no fallback 0 (não é um caso validado).
func PayloadLen(tag KindTag) int {
	if int(tag) < len(payloadLen) {
		return payloadLen[tag]
	}
	return 0
}

// Known indica se a tag pertence ao conjunto fechado de variantes
func (t KindTag) Known() bool { return int(t) < len(tagNames) }

func (t KindTag) String() string {
	if t.Known() {
		return tagNames[t]
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// WagerKind é a forma da aposta no tabuleiro: tag + payload de até 2 bytes
type WagerKind struct {
	Tag  KindTag
	Args [2]uint8
}

func Straight(number uint8) WagerKind { return WagerKind{Tag: TagStraight, Args: [2]uint8{number}} }
func Split(a, b uint8) WagerKind { return WagerKind{Tag: TagSplit, Args: [2]uint8{a, b}} }
func Street(row uint8) WagerKind { return WagerKind{Tag: TagStreet, Args: [2]uint8{row}} }
func Corner(row, col uint8) WagerKind { return WagerKind{Tag: TagCorner, Args: [2]uint8{row, col}} }
func SixLine(row uint8) WagerKind { return WagerKind{Tag: TagSixLine, Args: [2]uint8{row}} }
func Red() WagerKind { return WagerKind{Tag: TagRed} }
func Black() WagerKind { return WagerKind{Tag: TagBlack} }
func Even() WagerKind { return WagerKind{Tag: TagEven} }
func Odd() WagerKind { return WagerKind{Tag: TagOdd} }
func Low() WagerKind { return WagerKind{Tag: TagLow} }
func High() WagerKind { return WagerKind{Tag: TagHigh} }
func Dozen(idx uint8) WagerKind { return WagerKind{Tag: TagDozen, Args: [2]uint8{idx}} }
func Column(idx uint8) WagerKind { return WagerKind{Tag: TagColumn, Args: [2]uint8{idx}} }

// Payload devolve só os bytes significativos para a tag
func (k WagerKind) Payload() []byte {
	return k.Args[:PayloadLen(k.Tag)]
}

// Err devolve ErrUnknownVariantTag quando o valor decodificado é suspeito;
// o chamador deve rejeitá-lo antes de usar.
func (k WagerKind) Err() error {
	if !k.Tag.Known() {
		return fmt.Errorf("%w: wager kind %d", ErrUnknownVariantTag, uint8(k.Tag))
	}
	return nil
}

func (k WagerKind) String() string {
	p := k.Payload()
	if len(p) == 0 {
		return k.Tag.String()
	}
	parts := make([]string, len(p))
	for i, b := range p {
		parts[i] = fmt.Sprint(b)
	}
	return k.Tag.String() + "(" + strings.Join(parts, ",") + ")"
}

// EncodeWagerKind serializa tag || payload
func EncodeWagerKind(k WagerKind) []byte {
	return append([]byte{byte(k.Tag)}, k.Payload()...)
}

// DecodeWagerKind lê tag, consulta o tamanho do payload e lê exatamente esses bytes.
// Devolve também quantos bytes foram consumidos.
func DecodeWagerKind(buf []byte) (WagerKind, int, error) {
	var k WagerKind
	n, err := decodeFields(buf, []Field{fieldWagerKind("kind", &k)})
	if err != nil {
		return WagerKind{}, 0, err
	}
	return k, n, nil
}

// ParseWagerKind monta a variante a partir do nome usado na API e dos argumentos
func ParseWagerKind(name string, args []uint8) (WagerKind, error) {
	for i, n := range tagNames {
		if n != name {
			continue
		}
		tag := KindTag(i)
		if len(args) != PayloadLen(tag) {
			return WagerKind{}, fmt.Errorf("wager kind %s takes %d args, got %d", name, PayloadLen(tag), len(args))
		}
		k := WagerKind{Tag: tag}
		copy(k.Args[:], args)
		return k, nil
	}
	return WagerKind{}, fmt.Errorf("%w: wager kind %q", ErrUnknownVariantTag, name)
}
