package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/address"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger/ledgertest"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
)

var (
	programID = solana.MustPublicKeyFromBase58("ErfuhJxxpHNKviT5LCnupGhSUbXpjfRThxikEgb94aDt")
	vrfID     = solana.MustPublicKeyFromBase58("VRFzZoJdhFWL8rkvu87LpKM3RbcVezpMEc6X5GVDr7y")
)

func TestParseTableList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, parseTableList(" a,b\tc  a\n"))
	assert.Empty(t, parseTableList(" , "))
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	payer := solana.NewWallet().PublicKey()
	cfg := protocol.Config{
		Program:   programID,
		VRF:       vrfID,
		StakeMint: solana.NewWallet().PublicKey(),
		GovMint:   solana.NewWallet().PublicKey(),
	}
	fake := ledgertest.New(payer)
	fake.OnSubmit = ledgertest.NewProgram(programID, vrfID).Handle
	client := protocol.New(fake, cfg, zap.NewNop())

	stakeATA, err := address.TokenAccount(payer, cfg.StakeMint)
	require.NoError(t, err)
	fake.PutBalance(stakeATA, 10_000)
	govATA, err := address.TokenAccount(payer, cfg.GovMint)
	require.NoError(t, err)
	fake.PutBalance(govATA, 100)

	table, err := client.OpenTable(ctx, protocol.OpenTableParams{Seed: 9, MinStake: 1, MaxStake: 100})
	require.NoError(t, err)
	_, err = client.DepositGov(ctx, table, protocol.OperatorThreshold)
	require.NoError(t, err)
	_, err = client.FundLiquidity(ctx, table, 2_500)
	require.NoError(t, err)

	bogus := solana.NewWallet().PublicKey()
	fake.Put(bogus, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})

	var out bytes.Buffer
	failed := inspect(ctx, &out, fake, client,
		[]string{table.String(), "not-a-key", solana.NewWallet().PublicKey().String(), bogus.String()}, true)
	assert.Equal(t, 3, failed)

	text := out.String()
	assert.Contains(t, text, "table "+table.String()+"\ndiscriminator OK")
	assert.Contains(t, text, "layout revision=2 size=264")
	assert.Contains(t, text, "available=2500")
	assert.Contains(t, text, " 238 bet_seq")
	assert.Contains(t, text, "INVALID_PUBKEY")
	assert.Contains(t, text, "status MISSING")
	assert.Contains(t, text, "discriminator 0102030405060708")
}
