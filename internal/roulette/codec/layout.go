package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// FieldKind identifica o formato binário de um campo do layout
type FieldKind uint8

const (
	FieldU8 FieldKind = iota
	FieldBool
	FieldU16
	FieldU32
	FieldU64
	FieldI64
	FieldKey
	FieldBytes32
	FieldBytes64
	FieldOptionU8
	FieldWagerKind
	FieldResponses
)

const (
	discriminatorSize = 8
	responseSize      = 32 + 64
)

// Field é uma entrada da lista declarativa de um registro: nome, formato e o
// destino (ponteiro) usado tanto na leitura quanto na escrita.
type Field struct {
	Name string
	Kind FieldKind
	ptr  any
}

func fieldU8(name string, p *uint8) Field { return Field{name, FieldU8, p} }
func fieldBool(name string, p *bool) Field { return Field{name, FieldBool, p} }
func fieldU16(name string, p *uint16) Field { return Field{name, FieldU16, p} }
func fieldU32(name string, p *uint32) Field { return Field{name, FieldU32, p} }
func fieldU64(name string, p *uint64) Field { return Field{name, FieldU64, p} }
func fieldI64(name string, p *int64) Field { return Field{name, FieldI64, p} }
func fieldKey(name string, p *solana.PublicKey) Field { return Field{name, FieldKey, p} }
func fieldBytes32(name string, p *[32]byte) Field { return Field{name, FieldBytes32, p} }
func fieldBytes64(name string, p *[64]byte) Field { return Field{name, FieldBytes64, p} }
func fieldOptionU8(name string, p *OptionU8) Field { return Field{name, FieldOptionU8, p} }
func fieldWagerKind(name string, p *WagerKind) Field { return Field{name, FieldWagerKind, p} }
func fieldResponses(name string, p *[]Response) Field { return Field{name, FieldResponses, p} }

// OptionU8 representa um Option<u8> (tag 0 = None, 1 = Some)
type OptionU8 struct {
	Value uint8
	Set   bool
}

// Layout amarra o nome da conta, seu discriminador e a lista de campos
type Layout struct {
	Account       string
	Discriminator [8]byte
	Fields        []Field
}

// AccountDiscriminator calcula os 8 bytes de tag de uma conta: sha256("account:<Nome>")[:8]
func AccountDiscriminator(account string) [8]byte {
	return sighash("account", account)
}

func sighash(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], sum[:discriminatorSize])
	return out
}

// size devolve quantos bytes o campo ocupa no início de rest.
// Campos variáveis olham o próprio cabeçalho; se nem o cabeçalho cabe, devolve
// o tamanho do cabeçalho e o walker acusa truncamento.
func (f Field) size(rest []byte) int {
	switch f.Kind {
	case FieldU8, FieldBool:
		return 1
	case FieldU16:
		return 2
	case FieldU32:
		return 4
	case FieldU64, FieldI64:
		return 8
	case FieldKey, FieldBytes32:
		return 32
	case FieldBytes64:
		return 64
	case FieldOptionU8:
		if len(rest) < 1 || rest[0] != 1 {
			return 1
		}
		return 2
	case FieldWagerKind:
		if len(rest) < 1 {
			return 1
		}
		return 1 + PayloadLen(KindTag(rest[0]))
	case FieldResponses:
		if len(rest) < 4 {
			return 4
		}
		return 4 + int(binary.LittleEndian.Uint32(rest[:4]))*responseSize
	}
	return 0
}

// fixedSize soma os tamanhos de campos de largura fixa
func fixedSize(fields []Field) int {
	n := 0
	for _, f := range fields {
		n += f.size(nil)
	}
	return n
}

// walk percorre os campos em ordem, uma única vez, e devolve o offset de cada
// um e o fim do último. Nenhum destino é escrito aqui.
func walk(buf []byte, fields []Field) ([]int, int, error) {
	offsets := make([]int, len(fields))
	off := 0
	for i, f := range fields {
		n := f.size(buf[off:])
		if len(buf)-off < n {
			return nil, 0, fmt.Errorf("%w: field %q needs %d bytes at offset %d, %d remain",
				ErrTruncatedBuffer, f.Name, n, off, len(buf)-off)
		}
		offsets[i] = off
		off += n
	}
	return offsets, off, nil
}

// decodeFields valida o buffer inteiro antes de escrever qualquer destino
func decodeFields(buf []byte, fields []Field) (int, error) {
	_, end, err := walk(buf, fields)
	if err != nil {
		return 0, err
	}
	dec := bin.NewBorshDecoder(buf[:end])
	for _, f := range fields {
		if err := f.read(dec); err != nil {
			return 0, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return end, nil
}

func (f Field) read(dec *bin.Decoder) error {
	switch p := f.ptr.(type) {
	case *uint8:
		v, err := dec.ReadUint8()
		*p = v
		return err
	case *bool:
		v, err := dec.ReadUint8()
		*p = v != 0
		return err
	case *uint16:
		v, err := dec.ReadUint16(bin.LE)
		*p = v
		return err
	case *uint32:
		v, err := dec.ReadUint32(bin.LE)
		*p = v
		return err
	case *uint64:
		v, err := dec.ReadUint64(bin.LE)
		*p = v
		return err
	case *int64:
		v, err := dec.ReadInt64(bin.LE)
		*p = v
		return err
	case *solana.PublicKey:
		b, err := dec.ReadNBytes(32)
		copy(p[:], b)
		return err
	case *[32]byte:
		b, err := dec.ReadNBytes(32)
		copy(p[:], b)
		return err
	case *[64]byte:
		b, err := dec.ReadNBytes(64)
		copy(p[:], b)
		return err
	case *OptionU8:
		tag, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		switch tag {
		case 0:
			*p = OptionU8{}
		case 1:
			v, err := dec.ReadUint8()
			if err != nil {
				return err
			}
			*p = OptionU8{Value: v, Set: true}
		default:
			return fmt.Errorf("%w: option tag %d", ErrLayoutMismatch, tag)
		}
		return nil
	case *WagerKind:
		tag, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		k := WagerKind{Tag: KindTag(tag)}
		payload, err := dec.ReadNBytes(PayloadLen(k.Tag))
		if err != nil {
			return err
		}
		copy(k.Args[:], payload)
		*p = k
		return nil
	case *[]Response:
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return err
		}
		out := make([]Response, n)
		for i := range out {
			authority, err := dec.ReadNBytes(32)
			if err != nil {
				return err
			}
			randomness, err := dec.ReadNBytes(64)
			if err != nil {
				return err
			}
			copy(out[i].Authority[:], authority)
			copy(out[i].Randomness[:], randomness)
		}
		*p = out
		return nil
	}
	return fmt.Errorf("unsupported destination %T", f.ptr)
}

func encodeFields(enc *bin.Encoder, fields []Field) error {
	for _, f := range fields {
		if err := f.write(enc); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

func (f Field) write(enc *bin.Encoder) error {
	switch p := f.ptr.(type) {
	case *uint8:
		return enc.WriteUint8(*p)
	case *bool:
		return enc.WriteBool(*p)
	case *uint16:
		return enc.WriteUint16(*p, bin.LE)
	case *uint32:
		return enc.WriteUint32(*p, bin.LE)
	case *uint64:
		return enc.WriteUint64(*p, bin.LE)
	case *int64:
		return enc.WriteInt64(*p, bin.LE)
	case *solana.PublicKey:
		return enc.WriteBytes(p[:], false)
	case *[32]byte:
		return enc.WriteBytes(p[:], false)
	case *[64]byte:
		return enc.WriteBytes(p[:], false)
	case *OptionU8:
		if !p.Set {
			return enc.WriteUint8(0)
		}
		if err := enc.WriteUint8(1); err != nil {
			return err
		}
		return enc.WriteUint8(p.Value)
	case *WagerKind:
		return enc.WriteBytes(EncodeWagerKind(*p), false)
	case *[]Response:
		if err := enc.WriteUint32(uint32(len(*p)), bin.LE); err != nil {
			return err
		}
		for _, r := range *p {
			if err := enc.WriteBytes(r.Authority[:], false); err != nil {
				return err
			}
			if err := enc.WriteBytes(r.Randomness[:], false); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported source %T", f.ptr)
}

// checkDiscriminator confere a tag de 8 bytes antes de qualquer campo
func (l Layout) checkDiscriminator(buf []byte) error {
	if len(buf) < discriminatorSize {
		return fmt.Errorf("%w: %s needs %d discriminator bytes, got %d",
			ErrTruncatedBuffer, l.Account, discriminatorSize, len(buf))
	}
	if !bytes.Equal(buf[:discriminatorSize], l.Discriminator[:]) {
		return fmt.Errorf("%w: expected %s tag %x, got %x",
			ErrLayoutMismatch, l.Account, l.Discriminator, buf[:discriminatorSize])
	}
	return nil
}

func (l Layout) decode(buf []byte) error {
	if err := l.checkDiscriminator(buf); err != nil {
		return err
	}
	if _, err := decodeFields(buf[discriminatorSize:], l.Fields); err != nil {
		return fmt.Errorf("decode %s: %w", l.Account, err)
	}
	return nil
}

func (l Layout) encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(l.Discriminator[:])
	if err := encodeFields(bin.NewBorshEncoder(buf), l.Fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", l.Account, err)
	}
	return buf.Bytes(), nil
}

// Offsets devolve a tabela nome→offset absoluto (contando o discriminador)
// para o buffer informado. Útil para diagnóstico de contas.
func (l Layout) Offsets(buf []byte) (map[string]int, error) {
	if err := l.checkDiscriminator(buf); err != nil {
		return nil, err
	}
	offsets, _, err := walk(buf[discriminatorSize:], l.Fields)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(offsets))
	for i, f := range l.Fields {
		out[f.Name] = discriminatorSize + offsets[i]
	}
	return out, nil
}
