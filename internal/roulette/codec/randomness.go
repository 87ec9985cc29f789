package codec

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	RandomnessV2Discriminator = AccountDiscriminator("RandomnessV2")
	RandomnessV1Discriminator = AccountDiscriminator("Randomness")
)

// RandomnessVariant é o estado do pedido de aleatoriedade no colaborador externo
type RandomnessVariant uint8

const (
	RandomnessPending   RandomnessVariant = 0
	RandomnessFulfilled RandomnessVariant = 1
)

func (v RandomnessVariant) String() string {
	if v == RandomnessFulfilled {
		return "fulfilled"
	}
	return "pending"
}

// Response é a contribuição parcial de um autorizador ainda não consolidada
type Response struct {
	Authority  solana.PublicKey
	Randomness [64]byte
}

// Randomness unifica as duas revisões da conta de pedido.
// Uma vez Fulfilled, o registro não muda mais.
type Randomness struct {
	Version    int
	Variant    RandomnessVariant
	Client     solana.PublicKey
	Seed       [32]byte
	Randomness [64]byte
	Responses  []Response
}

// Fulfilled indica se o valor aleatório final já está disponível
func (r *Randomness) Fulfilled() bool { return r.Variant == RandomnessFulfilled }

func (r *Randomness) layout() (Layout, error) {
	switch r.Version {
	case 1:
		return Layout{
			Account:       "Randomness",
			Discriminator: RandomnessV1Discriminator,
			Fields: []Field{
				fieldBytes32("seed", &r.Seed),
				fieldBytes64("randomness", &r.Randomness),
				fieldResponses("responses", &r.Responses),
			},
		}, nil
	case 2:
		fields := []Field{
			fieldKey("client", &r.Client),
			fieldBytes32("seed", &r.Seed),
		}
		if r.Variant == RandomnessFulfilled {
			fields = append(fields, fieldBytes64("randomness", &r.Randomness))
		} else {
			fields = append(fields, fieldResponses("responses", &r.Responses))
		}
		return Layout{Account: "RandomnessV2", Discriminator: RandomnessV2Discriminator, Fields: fields}, nil
	}
	return Layout{}, fmt.Errorf("%w: randomness version %d", ErrLayoutMismatch, r.Version)
}

// DecodeRandomness reconhece a revisão pelo discriminador
func DecodeRandomness(buf []byte) (*Randomness, error) {
	if len(buf) < discriminatorSize {
		return nil, fmt.Errorf("%w: randomness needs %d discriminator bytes, got %d",
			ErrTruncatedBuffer, discriminatorSize, len(buf))
	}
	tag := buf[:discriminatorSize]
	switch {
	case bytes.Equal(tag, RandomnessV2Discriminator[:]):
		return decodeRandomnessV2(buf)
	case bytes.Equal(tag, RandomnessV1Discriminator[:]):
		r := Randomness{Version: 1}
		l, _ := r.layout()
		if err := l.decode(buf); err != nil {
			return nil, err
		}
		if r.Randomness != ([64]byte{}) {
			r.Variant = RandomnessFulfilled
		}
		return &r, nil
	}
	return nil, fmt.Errorf("%w: expected randomness tag, got %x", ErrLayoutMismatch, tag)
}

func decodeRandomnessV2(buf []byte) (*Randomness, error) {
	body := buf[discriminatorSize:]
	if len(body) < 1 {
		return nil, fmt.Errorf("%w: randomness variant tag missing", ErrTruncatedBuffer)
	}
	r := Randomness{Version: 2, Variant: RandomnessVariant(body[0])}
	if r.Variant != RandomnessPending && r.Variant != RandomnessFulfilled {
		return nil, fmt.Errorf("%w: randomness variant %d", ErrUnknownVariantTag, body[0])
	}
	l, _ := r.layout()
	if _, err := decodeFields(body[1:], l.Fields); err != nil {
		return nil, fmt.Errorf("decode RandomnessV2: %w", err)
	}
	return &r, nil
}

func (r *Randomness) MarshalBinary() ([]byte, error) {
	l, err := r.layout()
	if err != nil {
		return nil, err
	}
	if r.Version == 1 {
		return l.encode()
	}
	// enum V2: discriminador, tag da variante, corpo
	l.Discriminator = [8]byte{}
	out, err := l.encode()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(out)+1)
	buf = append(buf, RandomnessV2Discriminator[:]...)
	buf = append(buf, byte(r.Variant))
	return append(buf, out[discriminatorSize:]...), nil
}
