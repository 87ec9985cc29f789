// Package address deriva os endereços de programa (PDAs) usados pela mesa de roleta
// e pelo colaborador de aleatoriedade.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

var (
	ErrNoSeeds      = errors.New("no seeds")
	ErrTooManySeeds = errors.New("too many seeds")
	ErrSeedTooLong  = errors.New("seed too long")
)

// Seeds fixos, iguais aos do programa
var (
	SeedTable          = []byte("table")
	SeedGovVault       = []byte("vault_gov")
	SeedGlobal         = []byte("global")
	SeedGlobalVault    = []byte("global_vault_usdc")
	SeedBet            = []byte("bet")
	SeedGovDeposit     = []byte("gov_deposit")
	SeedVRFRandomness  = []byte("orao-vrf-randomness-request")
	SeedVRFNetworkConf = []byte("orao-vrf-network-configuration")
)

// Derive valida os seeds e executa a busca do bump canônico
func Derive(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	if len(seeds) == 0 {
		return solana.PublicKey{}, 0, ErrNoSeeds
	}
	// o bump ocupa uma posição extra na derivação
	if len(seeds) >= MaxSeeds {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %d (max %d)", ErrTooManySeeds, len(seeds), MaxSeeds-1)
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return solana.PublicKey{}, 0, fmt.Errorf("%w: seed %d has %d bytes", ErrSeedTooLong, i, len(s))
		}
	}
	addr, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive address: %w", err)
	}
	return addr, bump, nil
}

// LE8 codifica um u64 em 8 bytes little-endian, formato dos seeds numéricos
func LE8(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Deriver amarra os helpers aos dois programas envolvidos
type Deriver struct {
	Program solana.PublicKey
	VRF     solana.PublicKey
}

func New(program, vrf solana.PublicKey) Deriver {
	return Deriver{Program: program, VRF: vrf}
}

func (d Deriver) Table(creator solana.PublicKey, seed uint64) (solana.PublicKey, uint8, error) {
	return Derive([][]byte{SeedTable, creator[:], LE8(seed)}, d.Program)
}

func (d Deriver) GovVault(table solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive([][]byte{SeedGovVault, table[:]}, d.Program)
}

func (d Deriver) Global(stakeMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive([][]byte{SeedGlobal, stakeMint[:]}, d.Program)
}

func (d Deriver) GlobalVault(global solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive([][]byte{SeedGlobalVault, global[:]}, d.Program)
}

func (d Deriver) Bet(table, player solana.PublicKey, betSeq uint64) (solana.PublicKey, uint8, error) {
	return Derive([][]byte{SeedBet, table[:], player[:], LE8(betSeq)}, d.Program)
}

func (d Deriver) GovDeposit(table, depositor solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive([][]byte{SeedGovDeposit, table[:], depositor[:]}, d.Program)
}

// Randomness deriva a conta de pedido no programa de VRF a partir do commitment
func (d Deriver) Randomness(force [32]byte) (solana.PublicKey, uint8, error) {
	return Derive([][]byte{SeedVRFRandomness, force[:]}, d.VRF)
}

func (d Deriver) VRFConfig() (solana.PublicKey, uint8, error) {
	return Derive([][]byte{SeedVRFNetworkConf}, d.VRF)
}

// TokenAccount é a conta de token associada (ATA) do dono para o mint
func TokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account: %w", err)
	}
	return ata, nil
}
