package protocol

import (
	"github.com/gagliardetto/solana-go"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
)

// Montagem das instruções na ordem exata de contas que o programa declara

func (c *Client) instruction(accounts solana.AccountMetaSlice, data []byte) solana.Instruction {
	return solana.NewInstruction(c.cfg.Program, accounts, data)
}

func signer(pk solana.PublicKey) *solana.AccountMeta { return solana.Meta(pk).WRITE().SIGNER() }
func writable(pk solana.PublicKey) *solana.AccountMeta { return solana.Meta(pk).WRITE() }
func readonly(pk solana.PublicKey) *solana.AccountMeta { return solana.Meta(pk) }

func (c *Client) ixCreateTable(stakeMint, govMint, table, govVault, global solana.PublicKey, args codec.CreateTableArgs) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		readonly(stakeMint),
		readonly(govMint),
		writable(table),
		writable(govVault),
		readonly(global),
		readonly(solana.SystemProgramID),
		readonly(solana.TokenProgramID),
		readonly(solana.SysVarRentPubkey),
	}, codec.EncodeCreateTable(args))
}

func (c *Client) ixInitGlobal(stakeMint, global, vault solana.PublicKey) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		readonly(stakeMint),
		writable(global),
		writable(vault),
		readonly(solana.SystemProgramID),
		readonly(solana.TokenProgramID),
		readonly(solana.SysVarRentPubkey),
	}, codec.IxInitGlobal.Encode())
}

func (c *Client) ixDepositLiquidity(operatorATA, global, vault solana.PublicKey, amount uint64) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		writable(operatorATA),
		writable(global),
		writable(vault),
		readonly(solana.TokenProgramID),
	}, codec.EncodeAmount(codec.IxDepositLiquidity, amount))
}

func (c *Client) ixExecuteWithdraw(operatorATA, table, global, vault solana.PublicKey, amount uint64) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		writable(operatorATA),
		writable(table),
		writable(global),
		writable(vault),
		readonly(solana.TokenProgramID),
	}, codec.EncodeAmount(codec.IxExecuteWithdraw, amount))
}

// ixOnlyOperator serve request_withdraw, set_mode, pause e unpause
func (c *Client) ixOnlyOperator(table solana.PublicKey, data []byte) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		writable(table),
	}, data)
}

func (c *Client) ixDepositGov(depositorATA, table, govVault, deposit solana.PublicKey, amount uint64) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		writable(depositorATA),
		writable(table),
		writable(govVault),
		writable(deposit),
		readonly(solana.SystemProgramID),
		readonly(solana.TokenProgramID),
	}, codec.EncodeAmount(codec.IxDepositGov, amount))
}

func (c *Client) ixWithdrawGov(depositorATA, table, govVault, deposit solana.PublicKey, amount uint64) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		writable(depositorATA),
		writable(table),
		writable(govVault),
		writable(deposit),
		readonly(solana.TokenProgramID),
	}, codec.EncodeAmount(codec.IxWithdrawGov, amount))
}

func (c *Client) ixClaimOperator(table, deposit solana.PublicKey) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		writable(table),
		readonly(deposit),
		readonly(c.ledger.Payer()),
	}, codec.IxClaimOperator.Encode())
}

type placeBetAccounts struct {
	playerATA  solana.PublicKey
	table      solana.PublicKey
	global     solana.PublicKey
	vault      solana.PublicKey
	bet        solana.PublicKey
	randomness solana.PublicKey
	treasury   solana.PublicKey
	vrfConfig  solana.PublicKey
}

func (c *Client) ixPlaceBet(a placeBetAccounts, args codec.PlaceBetArgs) (solana.Instruction, error) {
	data, err := codec.EncodePlaceBet(args)
	if err != nil {
		return nil, err
	}
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		writable(a.playerATA),
		writable(a.table),
		writable(a.global),
		writable(a.vault),
		writable(a.bet),
		writable(a.randomness),
		writable(a.treasury),
		writable(a.vrfConfig),
		readonly(c.cfg.VRF),
		readonly(solana.SystemProgramID),
		readonly(solana.TokenProgramID),
	}, data), nil
}

func (c *Client) ixResolveBet(table, bet, playerATA, global, vault, randomness solana.PublicKey) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		writable(table),
		writable(bet),
		writable(playerATA),
		writable(global),
		writable(vault),
		writable(randomness),
		readonly(solana.TokenProgramID),
	}, codec.IxResolveBet.Encode())
}

func (c *Client) ixRefundExpiredBet(table, bet, playerATA, global, vault solana.PublicKey) solana.Instruction {
	return c.instruction(solana.AccountMetaSlice{
		signer(c.ledger.Payer()),
		writable(table),
		writable(bet),
		writable(playerATA),
		writable(global),
		writable(vault),
		readonly(solana.TokenProgramID),
	}, codec.IxRefundExpiredBet.Encode())
}
