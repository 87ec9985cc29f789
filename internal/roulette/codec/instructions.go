package codec

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Instruction identifica uma instrução do programa pelo nome canônico.
// O discriminador é sempre derivado do nome, nunca mantido à mão.
type Instruction struct {
	Name          string
	Discriminator [8]byte
}

func newInstruction(name string) Instruction {
	return Instruction{Name: name, Discriminator: sighash("global", name)}
}

var (
	IxCreateTable      = newInstruction("create_table")
	IxInitGlobal       = newInstruction("init_global")
	IxDepositGov       = newInstruction("deposit_gov")
	IxWithdrawGov      = newInstruction("withdraw_gov")
	IxClaimOperator    = newInstruction("claim_operator")
	IxSetMode          = newInstruction("set_mode")
	IxPause            = newInstruction("pause")
	IxUnpause          = newInstruction("unpause")
	IxDepositLiquidity = newInstruction("deposit_liquidity_usdc")
	IxRequestWithdraw  = newInstruction("request_withdraw")
	IxExecuteWithdraw  = newInstruction("execute_withdraw")
	IxPlaceBet         = newInstruction("place_bet")
	IxResolveBet       = newInstruction("resolve_bet")
	IxRefundExpiredBet = newInstruction("refund_expired_bet")
)

var instructions = []Instruction{
	IxCreateTable, IxInitGlobal, IxDepositGov, IxWithdrawGov, IxClaimOperator,
	IxSetMode, IxPause, IxUnpause, IxDepositLiquidity, IxRequestWithdraw,
	IxExecuteWithdraw, IxPlaceBet, IxResolveBet, IxRefundExpiredBet,
}

// LookupInstruction identifica a instrução pelos 8 primeiros bytes do payload
func LookupInstruction(data []byte) (Instruction, bool) {
	if len(data) < discriminatorSize {
		return Instruction{}, false
	}
	for _, ix := range instructions {
		if bytes.Equal(data[:discriminatorSize], ix.Discriminator[:]) {
			return ix, true
		}
	}
	return Instruction{}, false
}

func (ix Instruction) String() string { return ix.Name }

// encode monta discriminador || argumentos em ordem de declaração
func (ix Instruction) encode(args ...Field) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(ix.Discriminator[:])
	if err := encodeFields(bin.NewBorshEncoder(buf), args); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ix.Name, err)
	}
	return buf.Bytes(), nil
}

// mustEncode atende instruções só com argumentos inteiros. Erro aqui é campo
// declarado com destino não suportado: falha de programação, não de entrada.
func (ix Instruction) mustEncode(args ...Field) []byte {
	data, err := ix.encode(args...)
	if err != nil {
		panic(err)
	}
	return data
}

// decode exige o discriminador certo e que os argumentos consumam o payload todo
func (ix Instruction) decode(data []byte, args ...Field) error {
	l := Layout{Account: ix.Name, Discriminator: ix.Discriminator, Fields: args}
	if err := l.checkDiscriminator(data); err != nil {
		return err
	}
	end, err := decodeFields(data[discriminatorSize:], args)
	if err != nil {
		return fmt.Errorf("decode %s: %w", ix.Name, err)
	}
	if extra := len(data) - discriminatorSize - end; extra != 0 {
		return fmt.Errorf("%w: %s has %d trailing bytes", ErrLayoutMismatch, ix.Name, extra)
	}
	return nil
}

// Encode serve as instruções sem argumentos (init_global, claim_operator,
// pause, unpause, resolve_bet, refund_expired_bet).
func (ix Instruction) Encode() []byte { return ix.mustEncode() }

type CreateTableArgs struct {
	Seed     uint64
	Mode     TableMode
	MinStake uint64
	MaxStake uint64
}

func (a *CreateTableArgs) fields() []Field {
	return []Field{
		fieldU64("seed", &a.Seed),
		fieldU8("mode", (*uint8)(&a.Mode)),
		fieldU64("min_bet", &a.MinStake),
		fieldU64("max_bet", &a.MaxStake),
	}
}

func EncodeCreateTable(a CreateTableArgs) []byte { return IxCreateTable.mustEncode(a.fields()...) }

func DecodeCreateTable(data []byte) (CreateTableArgs, error) {
	var a CreateTableArgs
	if err := IxCreateTable.decode(data, a.fields()...); err != nil {
		return CreateTableArgs{}, err
	}
	return a, nil
}

type PlaceBetArgs struct {
	Kind  WagerKind
	Stake uint64
	Force [32]byte
}

func (a *PlaceBetArgs) fields() []Field {
	return []Field{
		fieldWagerKind("kind", &a.Kind),
		fieldU64("amount", &a.Stake),
		fieldBytes32("force", &a.Force),
	}
}

// EncodePlaceBet recusa variante desconhecida, que o programa rejeitaria
func EncodePlaceBet(a PlaceBetArgs) ([]byte, error) {
	if err := a.Kind.Err(); err != nil {
		return nil, err
	}
	return IxPlaceBet.encode(a.fields()...)
}

func DecodePlaceBet(data []byte) (PlaceBetArgs, error) {
	var a PlaceBetArgs
	if err := IxPlaceBet.decode(data, a.fields()...); err != nil {
		return PlaceBetArgs{}, err
	}
	return a, nil
}

// EncodeAmount serve deposit_gov, withdraw_gov, deposit_liquidity_usdc,
// request_withdraw e execute_withdraw.
func EncodeAmount(ix Instruction, amount uint64) []byte {
	return ix.mustEncode(fieldU64("amount", &amount))
}

func DecodeAmount(ix Instruction, data []byte) (uint64, error) {
	var amount uint64
	if err := ix.decode(data, fieldU64("amount", &amount)); err != nil {
		return 0, err
	}
	return amount, nil
}

func EncodeSetMode(mode TableMode) []byte {
	return IxSetMode.mustEncode(fieldU8("mode", (*uint8)(&mode)))
}

func DecodeSetMode(data []byte) (TableMode, error) {
	var mode TableMode
	if err := IxSetMode.decode(data, fieldU8("mode", (*uint8)(&mode))); err != nil {
		return 0, err
	}
	return mode, nil
}

// Decode valida uma instrução sem argumentos
func (ix Instruction) Decode(data []byte) error { return ix.decode(data) }
