package protocol

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/wheel"
)

// NewCommitment sorteia o valor de 32 bytes que chaveia o pedido de aleatoriedade
func NewCommitment() ([32]byte, error) {
	var force [32]byte
	if _, err := rand.Read(force[:]); err != nil {
		return force, fmt.Errorf("generate commitment: %w", err)
	}
	return force, nil
}

type WagerRequest struct {
	Table solana.PublicKey
	Kind  codec.WagerKind
	Stake uint64
	Force [32]byte
}

// Placement registra tudo o que o orquestrador precisa depois do place
type Placement struct {
	Wager      solana.PublicKey
	Randomness solana.PublicKey
	Table      solana.PublicKey
	Player     solana.PublicKey
	BetSeq     uint64
	Kind       codec.WagerKind
	Stake      uint64
	Multiplier uint16
	MaxPayout  uint64
	Force      [32]byte
	Signature  solana.Signature
}

// PlaceWager checa as pré-condições, deriva os endereços e submete place_bet.
// Qualquer pré-condição violada falha antes da submissão, sem gastar o commitment.
func (c *Client) PlaceWager(ctx context.Context, req WagerRequest) (*Placement, error) {
	if err := wheel.Validate(req.Kind); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWager, err)
	}
	multiplier, err := wheel.Multiplier(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWager, err)
	}
	maxPayout, err := wheel.MaxPayout(req.Stake, multiplier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWager, err)
	}

	t, err := c.Table(ctx, req.Table, ledger.Confirmed)
	if err != nil {
		return nil, err
	}
	if t.Paused {
		return nil, fmt.Errorf("%w: %s", ErrTablePaused, req.Table)
	}
	if req.Stake < t.MinStake || req.Stake > t.MaxStake {
		return nil, fmt.Errorf("%w: stake %d outside [%d, %d]", ErrStakeOutOfRange, req.Stake, t.MinStake, t.MaxStake)
	}

	liq, err := c.Liquidity(ctx, t.StakeMint)
	if err != nil {
		return nil, err
	}
	if maxPayout > liq.Available() {
		return nil, fmt.Errorf("%w: max payout %d, available %d", ErrInsufficientLiquidity, maxPayout, liq.Available())
	}

	player := c.ledger.Payer()
	playerATA, bal, _, err := c.balance(ctx, player, t.StakeMint)
	if err != nil {
		return nil, err
	}
	if bal < req.Stake {
		return nil, fmt.Errorf("%w: player holds %d, stake %d", ErrInsufficientBalance, bal, req.Stake)
	}

	randomness, _, err := c.addr.Randomness(req.Force)
	if err != nil {
		return nil, err
	}
	vrfConfig, _, err := c.addr.VRFConfig()
	if err != nil {
		return nil, err
	}
	network, err := c.networkState(ctx, vrfConfig)
	if err != nil {
		return nil, err
	}

	args := codec.PlaceBetArgs{Kind: req.Kind, Stake: req.Stake, Force: req.Force}
	for attempt := 1; ; attempt++ {
		bet, _, err := c.addr.Bet(req.Table, player, t.BetSeq)
		if err != nil {
			return nil, err
		}

		stale, err := c.exists(ctx, bet)
		if err != nil {
			return nil, err
		}
		if !stale {
			ix, err := c.ixPlaceBet(placeBetAccounts{
				playerATA:  playerATA,
				table:      req.Table,
				global:     liq.Global,
				vault:      liq.Vault,
				bet:        bet,
				randomness: randomness,
				treasury:   network.Treasury,
				vrfConfig:  vrfConfig,
			}, args)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidWager, err)
			}
			sig, err := c.ledger.Submit(ctx, codec.IxPlaceBet.Name, ix)
			if err == nil {
				c.log.Info("wager placed",
					zap.String("wager", bet.String()),
					zap.String("table", req.Table.String()),
					zap.Stringer("kind", req.Kind),
					zap.Uint64("stake", req.Stake),
					zap.Uint64("bet_seq", t.BetSeq),
				)
				return &Placement{
					Wager:      bet,
					Randomness: randomness,
					Table:      req.Table,
					Player:     player,
					BetSeq:     t.BetSeq,
					Kind:       req.Kind,
					Stake:      req.Stake,
					Multiplier: multiplier,
					MaxPayout:  maxPayout,
					Force:      req.Force,
					Signature:  sig,
				}, nil
			}
			if !errors.Is(err, ledger.ErrRejected) {
				return nil, err
			}
			// rejeição só é corrida de sequência se o betSeq andou
			fresh, rerr := c.Table(ctx, req.Table, ledger.Confirmed)
			if rerr != nil || fresh.BetSeq == t.BetSeq {
				return nil, err
			}
			t = fresh
		} else {
			// finalized anda atrás e devolveria o mesmo betSeq
			fresh, err := c.Table(ctx, req.Table, ledger.Confirmed)
			if err != nil {
				return nil, err
			}
			t = fresh
		}

		if attempt >= staleRetries {
			return nil, fmt.Errorf("%w: table %s after %d attempts", ErrStaleSequence, req.Table, attempt)
		}
		c.log.Warn("stale bet sequence, rebuilding",
			zap.String("table", req.Table.String()),
			zap.Uint64("bet_seq", t.BetSeq),
			zap.Int("attempt", attempt),
		)
	}
}

func (c *Client) networkState(ctx context.Context, addr solana.PublicKey) (*codec.NetworkState, error) {
	buf, err := c.ledger.Account(ctx, addr, ledger.Confirmed)
	if err != nil {
		return nil, fmt.Errorf("read vrf config %s: %w", addr, err)
	}
	n, err := codec.DecodeNetworkState(buf)
	if err != nil {
		return nil, fmt.Errorf("vrf config %s: %w", addr, err)
	}
	return n, nil
}

func (c *Client) exists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	_, err := c.ledger.Account(ctx, addr, ledger.Confirmed)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return false, nil
	}
	return false, err
}

// Settlement é o resultado graduado. O payout é re-derivado, nunca lido da conta.
type Settlement struct {
	Wager     solana.PublicKey
	Outcome   uint8
	Won       bool
	Payout    uint64
	Signature solana.Signature
	// AlreadySettled: nenhuma transação foi submetida nesta chamada
	AlreadySettled bool
	// Verified: o número recalculado a partir da aleatoriedade bate com o gravado
	Verified bool
}

func (c *Client) grade(ctx context.Context, addr solana.PublicKey, w *codec.Wager) (*Settlement, error) {
	won, payout, err := wheel.Grade(w.Kind, w.Stake, w.Multiplier, w.Outcome.Value)
	if err != nil {
		return nil, fmt.Errorf("grade %s: %w", addr, err)
	}
	s := &Settlement{Wager: addr, Outcome: w.Outcome.Value, Won: won, Payout: payout}
	if r, err := c.Randomness(ctx, w.Randomness, ledger.Confirmed); err == nil && r.Fulfilled() {
		s.Verified = wheel.Outcome(r.Randomness) == w.Outcome.Value
	}
	if !s.Verified {
		c.log.Warn("outcome not verified against randomness",
			zap.String("wager", addr.String()),
			zap.Uint8("outcome", s.Outcome),
		)
	}
	return s, nil
}

// SettleWager liquida a aposta. Idempotente: se já estiver liquidada devolve o
// resultado existente sem submeter. Com aleatoriedade pendente devolve
// ErrRandomnessNotReady sem submeter.
func (c *Client) SettleWager(ctx context.Context, wagerAddr solana.PublicKey) (*Settlement, error) {
	w, err := c.Wager(ctx, wagerAddr, ledger.Confirmed)
	if err != nil {
		return nil, err
	}
	switch w.State {
	case codec.WagerSettled:
		s, err := c.grade(ctx, wagerAddr, w)
		if err != nil {
			return nil, err
		}
		s.AlreadySettled = true
		return s, nil
	case codec.WagerReclaimed:
		return nil, fmt.Errorf("%w: %s was reclaimed", ErrWagerClosed, wagerAddr)
	}

	r, err := c.Randomness(ctx, w.Randomness, ledger.Confirmed)
	if err != nil {
		return nil, err
	}
	if !r.Fulfilled() {
		return nil, fmt.Errorf("%w: request %s pending", ErrRandomnessNotReady, w.Randomness)
	}

	t, err := c.Table(ctx, w.Table, ledger.Confirmed)
	if err != nil {
		return nil, err
	}
	liq, err := c.poolAccounts(t.StakeMint)
	if err != nil {
		return nil, err
	}
	playerATA, err := c.ensureTokenAccount(ctx, w.Player, t.StakeMint)
	if err != nil {
		return nil, err
	}

	sig, err := c.ledger.Submit(ctx, codec.IxResolveBet.Name,
		c.ixResolveBet(w.Table, wagerAddr, playerATA, liq.Global, liq.Vault, w.Randomness))
	if err != nil {
		// outra instância pode ter liquidado primeiro
		if again, rerr := c.Wager(ctx, wagerAddr, ledger.Confirmed); rerr == nil && again.Settled() {
			s, gerr := c.grade(ctx, wagerAddr, again)
			if gerr != nil {
				return nil, gerr
			}
			s.AlreadySettled = true
			return s, nil
		}
		return nil, err
	}

	settled, err := reread(ctx, func(ctx context.Context, level ledger.Commitment) (*codec.Wager, error) {
		return c.Wager(ctx, wagerAddr, level)
	}, (*codec.Wager).Settled)
	if err != nil {
		return nil, fmt.Errorf("settle %s (sig %s): %w", wagerAddr, sig, err)
	}
	s, err := c.grade(ctx, wagerAddr, settled)
	if err != nil {
		return nil, err
	}
	s.Signature = sig
	c.log.Info("wager settled",
		zap.String("wager", wagerAddr.String()),
		zap.Uint8("outcome", s.Outcome),
		zap.Bool("won", s.Won),
		zap.Uint64("payout", s.Payout),
	)
	return s, nil
}

// ExpiresAt é o instante a partir do qual a aposta pendente pode ser reclamada
func ExpiresAt(w *codec.Wager) time.Time {
	return time.Unix(w.CreatedTS, 0).Add(BetTimeout)
}

// Reclaim é a devolução do stake de uma aposta expirada sem resultado
type Reclaim struct {
	Wager     solana.PublicKey
	Refunded  uint64
	Signature solana.Signature
	// AlreadyReclaimed: nenhuma transação foi submetida nesta chamada
	AlreadyReclaimed bool
}

// ReclaimExpiredWager devolve o stake depois da janela de expiração
func (c *Client) ReclaimExpiredWager(ctx context.Context, wagerAddr solana.PublicKey) (*Reclaim, error) {
	w, err := c.Wager(ctx, wagerAddr, ledger.Confirmed)
	if err != nil {
		return nil, err
	}
	switch w.State {
	case codec.WagerReclaimed:
		return &Reclaim{Wager: wagerAddr, Refunded: w.Stake, AlreadyReclaimed: true}, nil
	case codec.WagerSettled:
		return nil, fmt.Errorf("%w: %s already settled", ErrWagerClosed, wagerAddr)
	}
	if expiry := ExpiresAt(w); c.now().Before(expiry) {
		return nil, fmt.Errorf("%w: %s expires at %s", ErrNotExpired, wagerAddr, expiry.UTC().Format(time.RFC3339))
	}

	t, err := c.Table(ctx, w.Table, ledger.Confirmed)
	if err != nil {
		return nil, err
	}
	liq, err := c.poolAccounts(t.StakeMint)
	if err != nil {
		return nil, err
	}
	playerATA, err := c.ensureTokenAccount(ctx, w.Player, t.StakeMint)
	if err != nil {
		return nil, err
	}
	sig, err := c.ledger.Submit(ctx, codec.IxRefundExpiredBet.Name,
		c.ixRefundExpiredBet(w.Table, wagerAddr, playerATA, liq.Global, liq.Vault))
	if err != nil {
		return nil, err
	}
	if _, err := reread(ctx, func(ctx context.Context, level ledger.Commitment) (*codec.Wager, error) {
		return c.Wager(ctx, wagerAddr, level)
	}, func(w *codec.Wager) bool { return w.State == codec.WagerReclaimed }); err != nil {
		return nil, fmt.Errorf("reclaim %s (sig %s): %w", wagerAddr, sig, err)
	}
	c.log.Info("wager reclaimed", zap.String("wager", wagerAddr.String()), zap.Uint64("stake", w.Stake))
	return &Reclaim{Wager: wagerAddr, Refunded: w.Stake, Signature: sig}, nil
}

// poolAccounts deriva o pool global e seu vault sem ir à rede
func (c *Client) poolAccounts(stakeMint solana.PublicKey) (*Liquidity, error) {
	global, _, err := c.addr.Global(stakeMint)
	if err != nil {
		return nil, err
	}
	vault, _, err := c.addr.GlobalVault(global)
	if err != nil {
		return nil, err
	}
	return &Liquidity{Global: global, Vault: vault}, nil
}
