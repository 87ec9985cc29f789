package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/address"
	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger/ledgertest"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/roulette/wheel"
)

var (
	programID = solana.MustPublicKeyFromBase58("ErfuhJxxpHNKviT5LCnupGhSUbXpjfRThxikEgb94aDt")
	vrfID     = solana.MustPublicKeyFromBase58("VRFzZoJdhFWL8rkvu87LpKM3RbcVezpMEc6X5GVDr7y")
)

type harness struct {
	fake   *ledgertest.Fake
	prog   *ledgertest.Program
	client *protocol.Client
	table  solana.PublicKey
	offset time.Duration
}

func (h *harness) now() time.Time { return time.Now().Add(h.offset) }

func newHarness(t *testing.T, liquidity uint64) *harness {
	t.Helper()
	ctx := context.Background()
	payer := solana.NewWallet().PublicKey()
	cfg := protocol.Config{
		Program:   programID,
		VRF:       vrfID,
		StakeMint: solana.NewWallet().PublicKey(),
		GovMint:   solana.NewWallet().PublicKey(),
	}
	h := &harness{fake: ledgertest.New(payer), prog: ledgertest.NewProgram(programID, vrfID)}
	h.prog.Now = h.now
	h.fake.OnSubmit = h.prog.Handle
	h.client = protocol.New(h.fake, cfg, zap.NewNop(), protocol.WithClock(h.now))

	require.NoError(t, h.prog.InstallVRFConfig(h.fake, solana.NewWallet().PublicKey()))
	stakeATA, err := address.TokenAccount(payer, cfg.StakeMint)
	require.NoError(t, err)
	govATA, err := address.TokenAccount(payer, cfg.GovMint)
	require.NoError(t, err)
	h.fake.PutBalance(stakeATA, 1_000_000)
	h.fake.PutBalance(govATA, 100)

	h.table, err = h.client.OpenTable(ctx, protocol.OpenTableParams{Seed: 1, MinStake: 1, MaxStake: 1_000})
	require.NoError(t, err)
	_, err = h.client.DepositGov(ctx, h.table, protocol.OperatorThreshold)
	require.NoError(t, err)
	_, err = h.client.FundLiquidity(ctx, h.table, liquidity)
	require.NoError(t, err)
	return h
}

func (h *harness) orchestrator(opts Options) *Orchestrator {
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.Window == 0 {
		opts.Window = 40 * time.Millisecond
	}
	opts.Now = h.now
	return New(h.client, zap.NewNop(), opts)
}

func (h *harness) request(t *testing.T, kind codec.WagerKind, stake uint64) protocol.WagerRequest {
	t.Helper()
	force, err := protocol.NewCommitment()
	require.NoError(t, err)
	return protocol.WagerRequest{Table: h.table, Kind: kind, Stake: stake, Force: force}
}

func TestRunSettlesAfterFulfillment(t *testing.T) {
	h := newHarness(t, 100_000)
	var (
		mu     sync.Mutex
		states []State
	)
	o := h.orchestrator(Options{Observer: func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	}})

	ctx := context.Background()
	p, err := o.Place(ctx, h.request(t, codec.Straight(17), 100))
	require.NoError(t, err)
	assert.Equal(t, AwaitingRandomness, o.Status().State)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = h.prog.Fulfill(h.fake, p.Randomness, ledgertest.RandomnessFor(17))
	}()

	st, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Settled, st.State)
	require.NotNil(t, st.Outcome)
	assert.Equal(t, uint8(17), *st.Outcome)
	assert.True(t, st.Won)
	assert.Equal(t, uint64(3_600), st.Payout)
	assert.True(t, st.Verified)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Submitted, AwaitingRandomness, Ready, Settling, Settled}, states)
}

func TestAwaitRandomnessStillWaiting(t *testing.T) {
	h := newHarness(t, 100_000)
	o := h.orchestrator(Options{})
	ctx := context.Background()

	_, err := o.Place(ctx, h.request(t, codec.Red(), 10))
	require.NoError(t, err)

	ready, err := o.AwaitRandomness(ctx)
	require.NoError(t, err)
	assert.False(t, ready)

	st := o.Status()
	assert.Equal(t, AwaitingRandomness, st.State)
	assert.True(t, st.StillWaiting)
	assert.Equal(t, 1, st.Windows)
	assert.Zero(t, h.fake.Count("resolve_bet"))

	_, err = o.Settle(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, h.fake.Count("resolve_bet"))
}

func TestAwaitRandomnessCancelKeepsState(t *testing.T) {
	h := newHarness(t, 100_000)
	o := h.orchestrator(Options{Window: time.Minute})

	_, err := o.Place(context.Background(), h.request(t, codec.Even(), 10))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	_, err = o.AwaitRandomness(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, AwaitingRandomness, o.Status().State)
}

func TestSettleIsIdempotent(t *testing.T) {
	h := newHarness(t, 100_000)
	o := h.orchestrator(Options{})
	ctx := context.Background()

	p, err := o.Place(ctx, h.request(t, codec.Corner(1, 1), 100))
	require.NoError(t, err)
	require.NoError(t, h.prog.Fulfill(h.fake, p.Randomness, ledgertest.RandomnessFor(5)))

	ready, err := o.AwaitRandomness(ctx)
	require.NoError(t, err)
	require.True(t, ready)

	first, err := o.Settle(ctx)
	require.NoError(t, err)
	second, err := o.Settle(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, first.Payout, second.Payout)
	assert.Equal(t, uint64(900), first.Payout)
	assert.Equal(t, 1, h.fake.Count("resolve_bet"))

	// um segundo orquestrador retomando a mesma aposta não resubmete
	other := h.orchestrator(Options{})
	st, err := other.Resume(ctx, p.Wager)
	require.NoError(t, err)
	assert.Equal(t, Settled, st.State)
	assert.Equal(t, uint8(5), *st.Outcome)
	assert.Equal(t, 1, h.fake.Count("resolve_bet"))
}

func TestSettleGuardSeesSettledWager(t *testing.T) {
	h := newHarness(t, 100_000)
	o := h.orchestrator(Options{})
	ctx := context.Background()

	p, err := o.Place(ctx, h.request(t, codec.Black(), 100))
	require.NoError(t, err)
	require.NoError(t, h.prog.Fulfill(h.fake, p.Randomness, ledgertest.RandomnessFor(2)))
	ready, err := o.AwaitRandomness(ctx)
	require.NoError(t, err)
	require.True(t, ready)

	// outra aba liquidou no meio tempo
	_, err = h.client.SettleWager(ctx, p.Wager)
	require.NoError(t, err)

	res, err := o.Settle(ctx)
	require.NoError(t, err)
	assert.True(t, res.AlreadySettled)
	assert.Equal(t, uint8(2), res.Outcome)
	assert.Equal(t, uint64(200), res.Payout)
	assert.True(t, res.Verified)
	assert.Equal(t, 1, h.fake.Count("resolve_bet"))
}

func TestResumeSettledWagerIsVerified(t *testing.T) {
	h := newHarness(t, 100_000)
	ctx := context.Background()

	p, err := h.client.PlaceWager(ctx, h.request(t, codec.Straight(17), 10))
	require.NoError(t, err)
	require.NoError(t, h.prog.Fulfill(h.fake, p.Randomness, ledgertest.RandomnessFor(17)))
	_, err = h.client.SettleWager(ctx, p.Wager)
	require.NoError(t, err)

	o := h.orchestrator(Options{})
	st, err := o.Resume(ctx, p.Wager)
	require.NoError(t, err)
	assert.Equal(t, Settled, st.State)
	assert.True(t, st.Verified)
	assert.Equal(t, uint64(360), st.Payout)

	res, err := o.Settle(ctx)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, 1, h.fake.Count("resolve_bet"))
}

func TestPlacePreconditionFails(t *testing.T) {
	h := newHarness(t, 1_000)
	o := h.orchestrator(Options{})

	_, err := o.Place(context.Background(), h.request(t, codec.Straight(3), 50))
	assert.ErrorIs(t, err, protocol.ErrInsufficientLiquidity)
	st := o.Status()
	assert.Equal(t, Failed, st.State)
	assert.Contains(t, st.Reason, "insufficient pool liquidity")
	assert.Zero(t, h.fake.Count("place_bet"))
}

func TestRunAutoReclaimsExpiredWager(t *testing.T) {
	h := newHarness(t, 100_000)
	o := h.orchestrator(Options{AutoReclaim: true})
	ctx := context.Background()

	_, err := o.Place(ctx, h.request(t, codec.Low(), 100))
	require.NoError(t, err)

	h.offset = protocol.BetTimeout + time.Minute
	st, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Expired, st.State)
	assert.Equal(t, 1, h.fake.Count("refund_expired_bet"))
}

func TestReclaimBeforeExpiry(t *testing.T) {
	h := newHarness(t, 100_000)
	o := h.orchestrator(Options{})
	ctx := context.Background()

	_, err := o.Place(ctx, h.request(t, codec.Low(), 100))
	require.NoError(t, err)

	_, err = o.Reclaim(ctx)
	assert.ErrorIs(t, err, protocol.ErrNotExpired)
	assert.Equal(t, AwaitingRandomness, o.Status().State)
}

func TestTerminalWagerRejectsFurtherSteps(t *testing.T) {
	h := newHarness(t, 100_000)
	o := h.orchestrator(Options{AutoReclaim: true})
	ctx := context.Background()

	_, err := o.Place(ctx, h.request(t, codec.Even(), 10))
	require.NoError(t, err)
	h.offset = protocol.BetTimeout + time.Minute
	st, err := o.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Expired, st.State)

	_, err = o.Reclaim(ctx)
	assert.ErrorIs(t, err, ErrTerminal)
	_, err = o.Settle(ctx)
	assert.ErrorIs(t, err, ErrTerminal)
	_, err = o.AwaitRandomness(ctx)
	assert.ErrorIs(t, err, ErrTerminal)
	_, err = o.Place(ctx, h.request(t, codec.Even(), 10))
	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, 1, h.fake.Count("refund_expired_bet"))
}

// stubProtocol devolve respostas fixas para exercitar os caminhos de erro
type stubProtocol struct {
	wager      *codec.Wager
	randomness *codec.Randomness
	settleErr  error
	settles    int
}

func (s *stubProtocol) PlaceWager(context.Context, protocol.WagerRequest) (*protocol.Placement, error) {
	return nil, errors.New("not used")
}

func (s *stubProtocol) Wager(context.Context, solana.PublicKey, ledger.Commitment) (*codec.Wager, error) {
	return s.wager, nil
}

func (s *stubProtocol) Randomness(context.Context, solana.PublicKey, ledger.Commitment) (*codec.Randomness, error) {
	return s.randomness, nil
}

func (s *stubProtocol) SettleWager(context.Context, solana.PublicKey) (*protocol.Settlement, error) {
	s.settles++
	return nil, s.settleErr
}

func (s *stubProtocol) ReclaimExpiredWager(context.Context, solana.PublicKey) (*protocol.Reclaim, error) {
	return nil, protocol.ErrNotExpired
}

func TestSettleTerminalErrorFails(t *testing.T) {
	stub := &stubProtocol{
		wager:      &codec.Wager{Kind: codec.Red(), CreatedTS: time.Now().Unix()},
		randomness: &codec.Randomness{Version: 2, Variant: codec.RandomnessFulfilled},
		settleErr:  &ledger.SubmitError{Instruction: "resolve_bet", Err: fmt.Errorf("%w: custom program error", ledger.ErrRejected)},
	}
	o := New(stub, zap.NewNop(), Options{PollInterval: time.Millisecond, Window: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := o.Resume(ctx, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	st, err := o.Run(ctx)
	assert.ErrorIs(t, err, ledger.ErrRejected)
	assert.Equal(t, Failed, st.State)
	assert.Contains(t, st.Reason, "resolve_bet")
	assert.Equal(t, 1, stub.settles)
}

func TestSettleNotVisibleRetriesThenGivesUp(t *testing.T) {
	stub := &stubProtocol{
		wager:      &codec.Wager{Kind: codec.Red(), CreatedTS: time.Now().Unix()},
		randomness: &codec.Randomness{Version: 2, Variant: codec.RandomnessFulfilled},
		settleErr:  protocol.ErrNotVisible,
	}
	o := New(stub, zap.NewNop(), Options{PollInterval: time.Millisecond, Window: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := o.Resume(ctx, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	st, err := o.Run(ctx)
	assert.ErrorIs(t, err, protocol.ErrNotVisible)
	assert.Equal(t, Ready, st.State)
	assert.Equal(t, maxRetryRounds+1, stub.settles)
}

func TestResumeCorruptSettledWagerFails(t *testing.T) {
	stub := &stubProtocol{
		wager: &codec.Wager{
			Kind:       codec.Straight(17),
			Stake:      math.MaxUint64 / 2,
			Multiplier: 35,
			State:      codec.WagerSettled,
			Outcome:    codec.OptionU8{Value: 17, Set: true},
			CreatedTS:  time.Now().Unix(),
		},
	}
	o := New(stub, zap.NewNop(), Options{PollInterval: time.Millisecond, Window: 10 * time.Millisecond})

	st, err := o.Resume(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, wheel.ErrPayoutOverflow)
	assert.Equal(t, Failed, st.State)
	assert.Zero(t, st.Payout)
	assert.Nil(t, st.Outcome)
}
