// Package settlement conduz uma aposta do place até o estado terminal:
// espera a aleatoriedade em janelas limitadas, liquida uma única vez e
// expõe o progresso para quem está acompanhando.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/roulette/wheel"
)

type State string

const (
	Idle               State = "IDLE"
	Submitted          State = "SUBMITTED"
	AwaitingRandomness State = "AWAITING_RANDOMNESS"
	Ready              State = "READY"
	Settling           State = "SETTLING"
	Settled            State = "SETTLED"
	Expired            State = "EXPIRED"
	Failed             State = "FAILED"
)

// Terminal indica que nenhuma transição sai deste estado
func (s State) Terminal() bool {
	return s == Settled || s == Expired || s == Failed
}

const (
	DefaultPollInterval = 1200 * time.Millisecond
	DefaultWindow       = 30 * time.Second
	maxRetryRounds      = 3
)

var (
	ErrTerminal     = errors.New("wager already in terminal state")
	ErrInvalidState = errors.New("operation not allowed in current state")
)

// Status é o que a camada de apresentação enxerga
type Status struct {
	Wager      solana.PublicKey
	Randomness solana.PublicKey
	State      State
	// StillWaiting: a última janela terminou sem aleatoriedade; não é erro
	StillWaiting bool
	Windows      int
	Outcome      *uint8
	Won          bool
	Payout       uint64
	Verified     bool
	Reason       string
	WaitStarted  time.Time
	UpdatedAt    time.Time
}

// Protocol é o subconjunto do cliente de protocolo que o orquestrador usa
type Protocol interface {
	PlaceWager(ctx context.Context, req protocol.WagerRequest) (*protocol.Placement, error)
	Wager(ctx context.Context, addr solana.PublicKey, level ledger.Commitment) (*codec.Wager, error)
	Randomness(ctx context.Context, addr solana.PublicKey, level ledger.Commitment) (*codec.Randomness, error)
	SettleWager(ctx context.Context, addr solana.PublicKey) (*protocol.Settlement, error)
	ReclaimExpiredWager(ctx context.Context, addr solana.PublicKey) (*protocol.Reclaim, error)
}

type Options struct {
	PollInterval time.Duration
	Window       time.Duration
	// AutoReclaim faz o Run reclamar a aposta depois da expiração
	AutoReclaim bool
	Observer    func(Status)
	Now         func() time.Time
}

// Orchestrator acompanha uma única aposta. Instâncias não compartilham estado.
type Orchestrator struct {
	mu        sync.Mutex
	proto     Protocol
	log       *zap.Logger
	opts      Options
	status    Status
	expiresAt time.Time
}

func New(p Protocol, log *zap.Logger, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		proto:  p,
		log:    log.Named("settlement"),
		opts:   opts,
		status: Status{State: Idle},
	}
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// stateErr distingue a aposta já encerrada de uma chamada fora de ordem
func stateErr(op string, st State) error {
	if st.Terminal() {
		return fmt.Errorf("%w: %s in %s", ErrTerminal, op, st)
	}
	return fmt.Errorf("%w: %s in %s", ErrInvalidState, op, st)
}

func (o *Orchestrator) update(fn func(*Status)) Status {
	o.mu.Lock()
	prev := o.status.State
	fn(&o.status)
	o.status.UpdatedAt = o.opts.Now()
	st := o.status
	o.mu.Unlock()

	if st.State != prev {
		o.log.Info("wager state changed",
			zap.String("wager", st.Wager.String()),
			zap.String("from", string(prev)),
			zap.String("to", string(st.State)),
		)
	}
	if o.opts.Observer != nil {
		o.opts.Observer(st)
	}
	return st
}

func (o *Orchestrator) fail(err error) error {
	o.update(func(s *Status) {
		s.State = Failed
		s.StillWaiting = false
		s.Reason = err.Error()
	})
	return err
}

func (o *Orchestrator) awaiting(wager, randomness solana.PublicKey) {
	o.update(func(s *Status) {
		s.Wager = wager
		s.Randomness = randomness
		s.State = AwaitingRandomness
		s.WaitStarted = o.opts.Now()
	})
}

// Place submete a aposta e passa por Submitted até AwaitingRandomness.
// Corrida de sequência é re-tentada; pré-condição violada leva a Failed.
func (o *Orchestrator) Place(ctx context.Context, req protocol.WagerRequest) (*protocol.Placement, error) {
	if st := o.Status().State; st != Idle {
		return nil, stateErr("place", st)
	}
	var (
		p   *protocol.Placement
		err error
	)
	for round := 1; ; round++ {
		p, err = o.proto.PlaceWager(ctx, req)
		if err == nil || !errors.Is(err, protocol.ErrStaleSequence) || round >= maxRetryRounds {
			break
		}
		if serr := sleep(ctx, o.opts.PollInterval); serr != nil {
			return nil, serr
		}
	}
	if err != nil {
		return nil, o.fail(err)
	}
	o.update(func(s *Status) {
		s.Wager = p.Wager
		s.Randomness = p.Randomness
		s.State = Submitted
	})
	o.awaiting(p.Wager, p.Randomness)
	return p, nil
}

// Resume retoma uma aposta já submetida a partir do estado lido da rede
func (o *Orchestrator) Resume(ctx context.Context, wager solana.PublicKey) (Status, error) {
	w, err := o.proto.Wager(ctx, wager, ledger.Confirmed)
	if err != nil {
		return o.Status(), err
	}
	o.mu.Lock()
	o.expiresAt = protocol.ExpiresAt(w)
	o.mu.Unlock()

	switch w.State {
	case codec.WagerSettled:
		return o.settledFrom(ctx, wager, w)
	case codec.WagerReclaimed:
		return o.update(func(s *Status) {
			s.Wager = wager
			s.Randomness = w.Randomness
			s.State = Expired
		}), nil
	}
	o.awaiting(wager, w.Randomness)
	return o.Status(), nil
}

// settledFrom registra uma aposta que a rede já mostra liquidada. O número é
// conferido de novo contra a aleatoriedade gravada.
func (o *Orchestrator) settledFrom(ctx context.Context, addr solana.PublicKey, w *codec.Wager) (Status, error) {
	won, payout, err := wheel.Grade(w.Kind, w.Stake, w.Multiplier, w.Outcome.Value)
	if err != nil {
		ferr := o.fail(fmt.Errorf("grade %s: %w", addr, err))
		return o.Status(), ferr
	}
	outcome := w.Outcome.Value
	verified := false
	if r, err := o.proto.Randomness(ctx, w.Randomness, ledger.Confirmed); err == nil && r != nil && r.Fulfilled() {
		verified = wheel.Outcome(r.Randomness) == outcome
	}
	if !verified {
		o.log.Warn("outcome not verified against randomness",
			zap.String("wager", addr.String()),
			zap.Uint8("outcome", outcome),
		)
	}
	return o.update(func(s *Status) {
		s.Wager = addr
		s.Randomness = w.Randomness
		s.State = Settled
		s.StillWaiting = false
		s.Outcome = &outcome
		s.Won = won
		s.Payout = payout
		s.Verified = verified
	}), nil
}

// AwaitRandomness faz uma janela de polling. Devolve true quando a
// aleatoriedade foi consolidada; false com StillWaiting quando a janela
// terminou sem ela. Cancelar o contexto não muda o estado da aposta.
func (o *Orchestrator) AwaitRandomness(ctx context.Context) (bool, error) {
	st := o.Status()
	switch st.State {
	case Ready:
		return true, nil
	case AwaitingRandomness:
	default:
		return false, stateErr("await", st.State)
	}

	deadline := o.opts.Now().Add(o.opts.Window)
	for {
		r, err := o.proto.Randomness(ctx, st.Randomness, ledger.Confirmed)
		switch {
		case err == nil && r.Fulfilled():
			o.update(func(s *Status) {
				s.State = Ready
				s.StillWaiting = false
			})
			return true, nil
		case err == nil, protocol.Retryable(err), errors.Is(err, ledger.ErrNetworkUnavailable):
			if err != nil {
				o.log.Debug("randomness poll", zap.String("wager", st.Wager.String()), zap.Error(err))
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return false, err
		default:
			return false, o.fail(err)
		}

		if !o.opts.Now().Add(o.opts.PollInterval).Before(deadline) {
			o.update(func(s *Status) {
				s.StillWaiting = true
				s.Windows++
			})
			return false, nil
		}
		if err := sleep(ctx, o.opts.PollInterval); err != nil {
			return false, err
		}
	}
}

// Settle liquida a aposta pronta. Antes de submeter sempre confere se ela já
// foi liquidada; nesse caso usa o resultado existente.
func (o *Orchestrator) Settle(ctx context.Context) (*protocol.Settlement, error) {
	st := o.Status()
	switch st.State {
	case Settled:
		return settlementOf(st), nil
	case Ready:
	default:
		return nil, stateErr("settle", st.State)
	}

	w, err := o.proto.Wager(ctx, st.Wager, ledger.Confirmed)
	if err != nil {
		if errors.Is(err, codec.ErrLayoutMismatch) || errors.Is(err, codec.ErrUnknownVariantTag) {
			return nil, o.fail(err)
		}
		return nil, err
	}
	switch w.State {
	case codec.WagerSettled:
		done, err := o.settledFrom(ctx, st.Wager, w)
		if err != nil {
			return nil, err
		}
		return settlementOf(done), nil
	case codec.WagerReclaimed:
		o.update(func(s *Status) { s.State = Expired })
		return nil, fmt.Errorf("%w: %s", protocol.ErrWagerClosed, st.Wager)
	}

	o.update(func(s *Status) { s.State = Settling })
	res, err := o.proto.SettleWager(ctx, st.Wager)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrRandomnessNotReady):
		o.update(func(s *Status) { s.State = AwaitingRandomness })
		return nil, err
	case protocol.Retryable(err), ledger.IsRateLimited(err),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// a próxima tentativa reconfere o estado antes de submeter
		o.update(func(s *Status) { s.State = Ready })
		return nil, err
	default:
		return nil, o.fail(err)
	}

	outcome := res.Outcome
	o.update(func(s *Status) {
		s.State = Settled
		s.Outcome = &outcome
		s.Won = res.Won
		s.Payout = res.Payout
		s.Verified = res.Verified
	})
	return res, nil
}

func settlementOf(st Status) *protocol.Settlement {
	s := &protocol.Settlement{
		Wager:          st.Wager,
		Won:            st.Won,
		Payout:         st.Payout,
		Verified:       st.Verified,
		AlreadySettled: true,
	}
	if st.Outcome != nil {
		s.Outcome = *st.Outcome
	}
	return s
}

// Reclaim devolve o stake de uma aposta que nunca recebeu aleatoriedade
func (o *Orchestrator) Reclaim(ctx context.Context) (*protocol.Reclaim, error) {
	st := o.Status()
	if st.State != AwaitingRandomness && st.State != Ready {
		return nil, stateErr("reclaim", st.State)
	}
	res, err := o.proto.ReclaimExpiredWager(ctx, st.Wager)
	if err != nil {
		if errors.Is(err, protocol.ErrWagerClosed) {
			// liquidada por outro caminho; o Resume registra o resultado
			_, _ = o.Resume(ctx, st.Wager)
		}
		return nil, err
	}
	o.update(func(s *Status) {
		s.State = Expired
		s.StillWaiting = false
	})
	return res, nil
}

// Run repete janelas de espera e a liquidação até um estado terminal ou até o
// contexto ser cancelado. Com AutoReclaim, reclama a aposta expirada.
func (o *Orchestrator) Run(ctx context.Context) (Status, error) {
	retries := 0
	for {
		st := o.Status()
		if st.State.Terminal() {
			return st, nil
		}
		switch st.State {
		case AwaitingRandomness:
			ready, err := o.AwaitRandomness(ctx)
			if err != nil {
				return o.Status(), err
			}
			if !ready && o.opts.AutoReclaim && o.expired(ctx) {
				if _, err := o.Reclaim(ctx); err != nil && !errors.Is(err, protocol.ErrNotExpired) {
					return o.Status(), err
				}
			}
		case Ready:
			if _, err := o.Settle(ctx); err != nil {
				if o.Status().State.Terminal() {
					return o.Status(), err
				}
				if !protocol.Retryable(err) && !ledger.IsRateLimited(err) {
					return o.Status(), err
				}
				retries++
				if retries > maxRetryRounds {
					return o.Status(), err
				}
				if err := sleep(ctx, o.opts.PollInterval); err != nil {
					return o.Status(), err
				}
			}
		default:
			return st, fmt.Errorf("%w: run in %s", ErrInvalidState, st.State)
		}
	}
}

func (o *Orchestrator) expired(ctx context.Context) bool {
	o.mu.Lock()
	exp := o.expiresAt
	addr := o.status.Wager
	o.mu.Unlock()
	if exp.IsZero() {
		w, err := o.proto.Wager(ctx, addr, ledger.Confirmed)
		if err != nil {
			return false
		}
		exp = protocol.ExpiresAt(w)
		o.mu.Lock()
		o.expiresAt = exp
		o.mu.Unlock()
	}
	return !o.opts.Now().Before(exp)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
