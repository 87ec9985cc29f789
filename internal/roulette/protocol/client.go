// Package protocol constrói e submete as operações da mesa de roleta, checando
// no cliente as pré-condições que evitariam uma transação condenada.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/address"
	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
)

// Constantes do programa
const (
	BetTimeout        = 1800 * time.Second
	WithdrawDelay     = 48 * time.Hour
	OperatorThreshold = 51
	staleRetries      = 3
)

type Config struct {
	Program   solana.PublicKey
	VRF       solana.PublicKey
	StakeMint solana.PublicKey
	GovMint   solana.PublicKey
}

type Client struct {
	ledger ledger.Ledger
	addr   address.Deriver
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

type Option func(*Client)

// WithClock troca o relógio usado nas janelas de expiração e de saque
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(l ledger.Ledger, cfg Config, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		ledger: l,
		addr:   address.New(cfg.Program, cfg.VRF),
		cfg:    cfg,
		log:    log.Named("protocol"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Deriver() address.Deriver { return c.addr }
func (c *Client) Payer() solana.PublicKey { return c.ledger.Payer() }
func (c *Client) Config() Config { return c.cfg }

func (c *Client) Table(ctx context.Context, addr solana.PublicKey, level ledger.Commitment) (*codec.Table, error) {
	buf, err := c.ledger.Account(ctx, addr, level)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", addr, err)
	}
	t, err := codec.DecodeTable(buf)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", addr, err)
	}
	return t, nil
}

func (c *Client) Wager(ctx context.Context, addr solana.PublicKey, level ledger.Commitment) (*codec.Wager, error) {
	buf, err := c.ledger.Account(ctx, addr, level)
	if err != nil {
		return nil, fmt.Errorf("read wager %s: %w", addr, err)
	}
	w, err := codec.DecodeWager(buf)
	if err != nil {
		return nil, fmt.Errorf("wager %s: %w", addr, err)
	}
	if err := w.Kind.Err(); err != nil {
		return nil, fmt.Errorf("wager %s: %w", addr, err)
	}
	return w, nil
}

// Randomness lê o pedido no colaborador. Conta ainda inexistente conta como pendente.
func (c *Client) Randomness(ctx context.Context, addr solana.PublicKey, level ledger.Commitment) (*codec.Randomness, error) {
	buf, err := c.ledger.Account(ctx, addr, level)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: request %s not found", ErrRandomnessNotReady, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("read randomness %s: %w", addr, err)
	}
	r, err := codec.DecodeRandomness(buf)
	if err != nil {
		return nil, fmt.Errorf("randomness %s: %w", addr, err)
	}
	return r, nil
}

// Liquidity é a fotografia do pool global de um ativo de aposta
type Liquidity struct {
	Global       solana.PublicKey
	Vault        solana.PublicKey
	VaultBalance uint64
	Locked       uint64
	ActiveBets   uint64
}

// Available nunca fica negativo: vault − locked, saturado em zero
func (l Liquidity) Available() uint64 {
	if l.Locked >= l.VaultBalance {
		return 0
	}
	return l.VaultBalance - l.Locked
}

func (c *Client) Liquidity(ctx context.Context, stakeMint solana.PublicKey) (*Liquidity, error) {
	global, _, err := c.addr.Global(stakeMint)
	if err != nil {
		return nil, err
	}
	buf, err := c.ledger.Account(ctx, global, ledger.Confirmed)
	if err != nil {
		return nil, fmt.Errorf("read global state %s: %w", global, err)
	}
	gs, err := codec.DecodeGlobalState(buf)
	if err != nil {
		return nil, fmt.Errorf("global state %s: %w", global, err)
	}
	bal, err := c.ledger.TokenBalance(ctx, gs.Vault, ledger.Confirmed)
	if err != nil {
		return nil, fmt.Errorf("read pool vault %s: %w", gs.Vault, err)
	}
	return &Liquidity{
		Global:       global,
		Vault:        gs.Vault,
		VaultBalance: bal,
		Locked:       gs.LockedLiability,
		ActiveBets:   gs.ActiveBets,
	}, nil
}

// GovDeposit devolve o depósito de governança; inexistente vale zero
func (c *Client) GovDeposit(ctx context.Context, table, depositor solana.PublicKey) (*codec.GovDeposit, error) {
	addr, _, err := c.addr.GovDeposit(table, depositor)
	if err != nil {
		return nil, err
	}
	buf, err := c.ledger.Account(ctx, addr, ledger.Confirmed)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return &codec.GovDeposit{Table: table, Depositor: depositor}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gov deposit %s: %w", addr, err)
	}
	d, err := codec.DecodeGovDeposit(buf)
	if err != nil {
		return nil, fmt.Errorf("gov deposit %s: %w", addr, err)
	}
	return d, nil
}

// balance lê o saldo da conta de token associada; conta inexistente vale zero
func (c *Client) balance(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, uint64, bool, error) {
	ata, err := address.TokenAccount(owner, mint)
	if err != nil {
		return solana.PublicKey{}, 0, false, err
	}
	bal, err := c.ledger.TokenBalance(ctx, ata, ledger.Confirmed)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return ata, 0, false, nil
	}
	if err != nil {
		return solana.PublicKey{}, 0, false, fmt.Errorf("read token account %s: %w", ata, err)
	}
	return ata, bal, true, nil
}

// ensureTokenAccount cria a conta associada no primeiro uso
func (c *Client) ensureTokenAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, exists, err := c.balance(ctx, owner, mint)
	if err != nil || exists {
		return ata, err
	}
	ix := associatedtokenaccount.NewCreateInstruction(c.ledger.Payer(), owner, mint).Build()
	if _, err := c.ledger.Submit(ctx, "create_associated_token_account", ix); err != nil {
		// outra submissão pode ter criado a conta no meio tempo
		if _, _, exists, rerr := c.balance(ctx, owner, mint); rerr == nil && exists {
			return ata, nil
		}
		return solana.PublicKey{}, err
	}
	c.log.Info("token account created", zap.String("owner", owner.String()), zap.String("mint", mint.String()))
	return ata, nil
}

// EnsureGlobal inicializa o pool global do ativo se ainda não existir. Idempotente.
func (c *Client) EnsureGlobal(ctx context.Context, stakeMint solana.PublicKey) (solana.PublicKey, error) {
	global, _, err := c.addr.Global(stakeMint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	_, err = c.ledger.Account(ctx, global, ledger.Confirmed)
	if err == nil {
		return global, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return solana.PublicKey{}, fmt.Errorf("read global state %s: %w", global, err)
	}
	vault, _, err := c.addr.GlobalVault(global)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if _, err := c.ledger.Submit(ctx, codec.IxInitGlobal.Name, c.ixInitGlobal(stakeMint, global, vault)); err != nil {
		// "already in use": alguém inicializou primeiro
		if _, rerr := c.ledger.Account(ctx, global, ledger.Finalized); rerr == nil {
			return global, nil
		}
		return solana.PublicKey{}, err
	}
	c.log.Info("global pool initialized", zap.String("global", global.String()), zap.String("mint", stakeMint.String()))
	return global, nil
}

// authorizeOperator falha rápido quando a carteira não opera a mesa ou não
// tem governança suficiente
func (c *Client) authorizeOperator(ctx context.Context, tableAddr solana.PublicKey, t *codec.Table) error {
	payer := c.ledger.Payer()
	if !t.Operator.Equals(payer) {
		return fmt.Errorf("%w: %s is not operator of table %s", ErrNotAuthorized, payer, tableAddr)
	}
	dep, err := c.GovDeposit(ctx, tableAddr, payer)
	if err != nil {
		return err
	}
	if dep.Amount < OperatorThreshold {
		return fmt.Errorf("%w: governance deposit %d below %d", ErrNotAuthorized, dep.Amount, OperatorThreshold)
	}
	return nil
}

// reread tolera visibilidade eventual: confirmed primeiro, finalized se ainda
// não reflete a transação.
func reread[T any](ctx context.Context, read func(context.Context, ledger.Commitment) (T, error), visible func(T) bool) (T, error) {
	v, err := read(ctx, ledger.Confirmed)
	if err == nil && visible(v) {
		return v, nil
	}
	v, err = read(ctx, ledger.Finalized)
	if err != nil {
		return v, err
	}
	if !visible(v) {
		return v, ErrNotVisible
	}
	return v, nil
}
