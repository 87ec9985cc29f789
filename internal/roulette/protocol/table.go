package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
)

type OpenTableParams struct {
	Seed     uint64
	Mode     codec.TableMode
	MinStake uint64
	MaxStake uint64
	// vazios usam os mints da configuração
	StakeMint solana.PublicKey
	GovMint   solana.PublicKey
}

// OpenTable cria a mesa do criador (carteira configurada) e garante o pool global
func (c *Client) OpenTable(ctx context.Context, p OpenTableParams) (solana.PublicKey, error) {
	if p.MinStake == 0 || p.MinStake > p.MaxStake {
		return solana.PublicKey{}, fmt.Errorf("%w: min %d max %d", ErrInvalidBounds, p.MinStake, p.MaxStake)
	}
	if p.Mode != codec.ModePrivate && p.Mode != codec.ModePublic {
		return solana.PublicKey{}, fmt.Errorf("%w: %d", ErrInvalidMode, p.Mode)
	}
	if p.StakeMint.IsZero() {
		p.StakeMint = c.cfg.StakeMint
	}
	if p.GovMint.IsZero() {
		p.GovMint = c.cfg.GovMint
	}

	table, _, err := c.addr.Table(c.ledger.Payer(), p.Seed)
	if err != nil {
		return solana.PublicKey{}, err
	}
	govVault, _, err := c.addr.GovVault(table)
	if err != nil {
		return solana.PublicKey{}, err
	}
	global, err := c.EnsureGlobal(ctx, p.StakeMint)
	if err != nil {
		return solana.PublicKey{}, err
	}

	ix := c.ixCreateTable(p.StakeMint, p.GovMint, table, govVault, global, codec.CreateTableArgs{
		Seed:     p.Seed,
		Mode:     p.Mode,
		MinStake: p.MinStake,
		MaxStake: p.MaxStake,
	})
	if _, err := c.ledger.Submit(ctx, codec.IxCreateTable.Name, ix); err != nil {
		return solana.PublicKey{}, err
	}
	c.log.Info("table opened",
		zap.String("table", table.String()),
		zap.Uint64("seed", p.Seed),
		zap.Stringer("mode", p.Mode),
	)
	return table, nil
}

// FundLiquidity deposita ativo de aposta da carteira do operador no pool global
func (c *Client) FundLiquidity(ctx context.Context, tableAddr solana.PublicKey, amount uint64) (solana.Signature, error) {
	if amount == 0 {
		return solana.Signature{}, ErrInvalidAmount
	}
	t, err := c.Table(ctx, tableAddr, ledger.Confirmed)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := c.authorizeOperator(ctx, tableAddr, t); err != nil {
		return solana.Signature{}, err
	}
	ata, bal, _, err := c.balance(ctx, c.ledger.Payer(), t.StakeMint)
	if err != nil {
		return solana.Signature{}, err
	}
	if bal < amount {
		return solana.Signature{}, fmt.Errorf("%w: operator holds %d, deposit %d", ErrInsufficientBalance, bal, amount)
	}
	global, err := c.EnsureGlobal(ctx, t.StakeMint)
	if err != nil {
		return solana.Signature{}, err
	}
	vault, _, err := c.addr.GlobalVault(global)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.ledger.Submit(ctx, codec.IxDepositLiquidity.Name, c.ixDepositLiquidity(ata, global, vault, amount))
}

// WithdrawPhase diz em que ponto do saque em duas fases a operação parou
type WithdrawPhase string

const (
	WithdrawRequested WithdrawPhase = "requested"
	WithdrawExecuted  WithdrawPhase = "executed"
)

type WithdrawResult struct {
	Phase     WithdrawPhase
	Signature solana.Signature
	// ReadyAt só vale para WithdrawRequested
	ReadyAt time.Time
}

// WithdrawLiquidity saca do pool global. Em modo Private executa direto; em
// Public, a primeira chamada registra o pedido e a execução só é aceita depois
// do atraso de 48h com o mesmo valor.
func (c *Client) WithdrawLiquidity(ctx context.Context, tableAddr solana.PublicKey, amount uint64) (*WithdrawResult, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	t, err := c.Table(ctx, tableAddr, ledger.Confirmed)
	if err != nil {
		return nil, err
	}
	if err := c.authorizeOperator(ctx, tableAddr, t); err != nil {
		return nil, err
	}
	if t.ActiveBets != 0 || t.LockedLiability != 0 {
		return nil, fmt.Errorf("%w: %d active bets, %d locked", ErrLiabilityLocked, t.ActiveBets, t.LockedLiability)
	}
	liq, err := c.Liquidity(ctx, t.StakeMint)
	if err != nil {
		return nil, err
	}
	if liq.Available() < amount {
		return nil, fmt.Errorf("%w: available %d, withdraw %d", ErrInsufficientLiquidity, liq.Available(), amount)
	}

	if t.Mode == codec.ModePublic {
		if t.WithdrawRequestAmount != amount {
			sig, err := c.ledger.Submit(ctx, codec.IxRequestWithdraw.Name,
				c.ixOnlyOperator(tableAddr, codec.EncodeAmount(codec.IxRequestWithdraw, amount)))
			if err != nil {
				return nil, err
			}
			readyAt := c.now().Add(WithdrawDelay)
			c.log.Info("withdraw requested",
				zap.String("table", tableAddr.String()),
				zap.Uint64("amount", amount),
				zap.Time("ready_at", readyAt),
			)
			return &WithdrawResult{Phase: WithdrawRequested, Signature: sig, ReadyAt: readyAt}, nil
		}
		readyAt := time.Unix(t.WithdrawRequestTS, 0).Add(WithdrawDelay)
		if c.now().Before(readyAt) {
			return nil, fmt.Errorf("%w: ready at %s", ErrWithdrawDelay, readyAt.UTC().Format(time.RFC3339))
		}
	}

	ata, err := c.ensureTokenAccount(ctx, c.ledger.Payer(), t.StakeMint)
	if err != nil {
		return nil, err
	}
	sig, err := c.ledger.Submit(ctx, codec.IxExecuteWithdraw.Name,
		c.ixExecuteWithdraw(ata, tableAddr, liq.Global, liq.Vault, amount))
	if err != nil {
		return nil, err
	}
	return &WithdrawResult{Phase: WithdrawExecuted, Signature: sig}, nil
}

// DepositGov trava token de governança na mesa em nome da carteira
func (c *Client) DepositGov(ctx context.Context, tableAddr solana.PublicKey, amount uint64) (solana.Signature, error) {
	if amount == 0 {
		return solana.Signature{}, ErrInvalidAmount
	}
	t, err := c.Table(ctx, tableAddr, ledger.Confirmed)
	if err != nil {
		return solana.Signature{}, err
	}
	ata, bal, _, err := c.balance(ctx, c.ledger.Payer(), t.GovMint)
	if err != nil {
		return solana.Signature{}, err
	}
	if bal < amount {
		return solana.Signature{}, fmt.Errorf("%w: holds %d governance, deposit %d", ErrInsufficientBalance, bal, amount)
	}
	deposit, _, err := c.addr.GovDeposit(tableAddr, c.ledger.Payer())
	if err != nil {
		return solana.Signature{}, err
	}
	return c.ledger.Submit(ctx, codec.IxDepositGov.Name, c.ixDepositGov(ata, tableAddr, t.GovVault, deposit, amount))
}

// WithdrawGov devolve governança; o operador não pode descer abaixo do limiar
func (c *Client) WithdrawGov(ctx context.Context, tableAddr solana.PublicKey, amount uint64) (solana.Signature, error) {
	if amount == 0 {
		return solana.Signature{}, ErrInvalidAmount
	}
	t, err := c.Table(ctx, tableAddr, ledger.Confirmed)
	if err != nil {
		return solana.Signature{}, err
	}
	payer := c.ledger.Payer()
	dep, err := c.GovDeposit(ctx, tableAddr, payer)
	if err != nil {
		return solana.Signature{}, err
	}
	if dep.Amount < amount {
		return solana.Signature{}, fmt.Errorf("%w: deposited %d, withdraw %d", ErrInsufficientBalance, dep.Amount, amount)
	}
	if t.Operator.Equals(payer) && dep.Amount-amount < OperatorThreshold {
		return solana.Signature{}, fmt.Errorf("%w: operator would drop below %d", ErrNotAuthorized, OperatorThreshold)
	}
	ata, err := c.ensureTokenAccount(ctx, payer, t.GovMint)
	if err != nil {
		return solana.Signature{}, err
	}
	deposit, _, err := c.addr.GovDeposit(tableAddr, payer)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.ledger.Submit(ctx, codec.IxWithdrawGov.Name, c.ixWithdrawGov(ata, tableAddr, t.GovVault, deposit, amount))
}

// ClaimOperator assume a operação da mesa com governança acima do limiar
func (c *Client) ClaimOperator(ctx context.Context, tableAddr solana.PublicKey) (solana.Signature, error) {
	payer := c.ledger.Payer()
	dep, err := c.GovDeposit(ctx, tableAddr, payer)
	if err != nil {
		return solana.Signature{}, err
	}
	if dep.Amount < OperatorThreshold {
		return solana.Signature{}, fmt.Errorf("%w: governance deposit %d below %d", ErrNotAuthorized, dep.Amount, OperatorThreshold)
	}
	deposit, _, err := c.addr.GovDeposit(tableAddr, payer)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.ledger.Submit(ctx, codec.IxClaimOperator.Name, c.ixClaimOperator(tableAddr, deposit))
}

func (c *Client) SetMode(ctx context.Context, tableAddr solana.PublicKey, mode codec.TableMode) (solana.Signature, error) {
	if mode != codec.ModePrivate && mode != codec.ModePublic {
		return solana.Signature{}, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}
	return c.operatorOnly(ctx, tableAddr, codec.IxSetMode.Name, codec.EncodeSetMode(mode))
}

func (c *Client) Pause(ctx context.Context, tableAddr solana.PublicKey) (solana.Signature, error) {
	return c.operatorOnly(ctx, tableAddr, codec.IxPause.Name, codec.IxPause.Encode())
}

func (c *Client) Unpause(ctx context.Context, tableAddr solana.PublicKey) (solana.Signature, error) {
	return c.operatorOnly(ctx, tableAddr, codec.IxUnpause.Name, codec.IxUnpause.Encode())
}

func (c *Client) operatorOnly(ctx context.Context, tableAddr solana.PublicKey, name string, data []byte) (solana.Signature, error) {
	t, err := c.Table(ctx, tableAddr, ledger.Confirmed)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := c.authorizeOperator(ctx, tableAddr, t); err != nil {
		return solana.Signature{}, err
	}
	return c.ledger.Submit(ctx, name, c.ixOnlyOperator(tableAddr, data))
}
