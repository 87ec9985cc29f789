package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/address"
	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger/ledgertest"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/roulette/settlement"
	"github.com/radieske/roulette-vrf-client/internal/shared/metrics"
	"github.com/radieske/roulette-vrf-client/pkg/contracts/events"
)

var (
	programID = solana.MustPublicKeyFromBase58("ErfuhJxxpHNKviT5LCnupGhSUbXpjfRThxikEgb94aDt")
	vrfID     = solana.MustPublicKeyFromBase58("VRFzZoJdhFWL8rkvu87LpKM3RbcVezpMEc6X5GVDr7y")
)

type recorder struct {
	mu          sync.Mutex
	transitions map[string][]string
	statuses    []events.WagerStatus
	settled     []events.WagerSettled
	dlq         [][]byte
}

func newRecorder() *recorder { return &recorder{transitions: map[string][]string{}} }

func (r *recorder) Transition(_ context.Context, addr, status, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[addr] = append(r.transitions[addr], status)
	return nil
}

func (r *recorder) PublishStatus(_ context.Context, st events.WagerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
	return nil
}

func (r *recorder) PublishWagerSettled(_ context.Context, e events.WagerSettled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, e)
	return nil
}

func (r *recorder) PublishDLQ(_ context.Context, _ string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dlq = append(r.dlq, payload)
	return nil
}

func (r *recorder) snapshot() ([]events.WagerSettled, [][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.WagerSettled(nil), r.settled...), append([][]byte(nil), r.dlq...)
}

type chanReader struct {
	ch        chan kafkago.Message
	mu        sync.Mutex
	committed int
}

func (c *chanReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	case m := <-c.ch:
		return m, nil
	}
}

func (c *chanReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed += len(msgs)
	return nil
}

func (c *chanReader) commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

type harness struct {
	fake   *ledgertest.Fake
	prog   *ledgertest.Program
	client *protocol.Client
	table  solana.PublicKey
	rec    *recorder
	m      *metrics.Roulette
	mu     sync.Mutex
	offset time.Duration
}

func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Now().Add(h.offset)
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offset += d
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	payer := solana.NewWallet().PublicKey()
	cfg := protocol.Config{
		Program:   programID,
		VRF:       vrfID,
		StakeMint: solana.NewWallet().PublicKey(),
		GovMint:   solana.NewWallet().PublicKey(),
	}
	h := &harness{
		fake: ledgertest.New(payer),
		prog: ledgertest.NewProgram(programID, vrfID),
		rec:  newRecorder(),
		m:    metrics.NewRoulette(prometheus.NewRegistry()),
	}
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
	_, err = h.client.FundLiquidity(ctx, h.table, 100_000)
	require.NoError(t, err)
	return h
}

func (h *harness) worker(r Reader, autoReclaim bool) *Worker {
	return &Worker{
		Log:         zap.NewNop(),
		Reader:      r,
		Proto:       h.client,
		Journal:     h.rec,
		Status:      h.rec,
		Events:      h.rec,
		Metrics:     h.m,
		Concurrency: 2,
		Retries:     2,
		Orchestrator: settlement.Options{
			PollInterval: 5 * time.Millisecond,
			Window:       20 * time.Millisecond,
			AutoReclaim:  autoReclaim,
			Now:          h.now,
		},
		MaxWait:    300 * time.Millisecond,
		retryDelay: func(int) time.Duration { return time.Millisecond },
	}
}

func (h *harness) place(t *testing.T, kind codec.WagerKind, stake uint64) (events.WagerPlaced, []byte) {
	t.Helper()
	force, err := protocol.NewCommitment()
	require.NoError(t, err)
	p, err := h.client.PlaceWager(context.Background(), protocol.WagerRequest{Table: h.table, Kind: kind, Stake: stake, Force: force})
	require.NoError(t, err)
	ev := events.WagerPlaced{
		Wager:      p.Wager.String(),
		Table:      p.Table.String(),
		Randomness: p.Randomness.String(),
		Kind:       p.Kind.String(),
		Stake:      p.Stake,
		PlacedAt:   time.Now(),
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return ev, raw
}

func TestProcessSettlesAndPublishes(t *testing.T) {
	h := newHarness(t)
	ev, raw := h.place(t, codec.Straight(17), 100)
	require.NoError(t, h.prog.Fulfill(h.fake, solana.MustPublicKeyFromBase58(ev.Randomness), ledgertest.RandomnessFor(17)))

	h.worker(nil, false).Process(context.Background(), ev, raw)

	settled, dlq := h.rec.snapshot()
	require.Len(t, settled, 1)
	assert.Empty(t, dlq)
	assert.Equal(t, "SETTLED", settled[0].Status)
	require.NotNil(t, settled[0].Outcome)
	assert.Equal(t, uint8(17), *settled[0].Outcome)
	assert.True(t, settled[0].Won)
	assert.Equal(t, uint64(3_600), settled[0].Payout)
	assert.True(t, settled[0].Verified)

	assert.Equal(t, []string{"AWAITING_RANDOMNESS", "READY", "SETTLING", "SETTLED"}, h.rec.transitions[ev.Wager])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.WagersSettled.WithLabelValues("won")))
	assert.Equal(t, 1, h.fake.Count("resolve_bet"))
}

func TestProcessAlreadySettledDoesNotResubmit(t *testing.T) {
	h := newHarness(t)
	ev, raw := h.place(t, codec.Red(), 10)
	require.NoError(t, h.prog.Fulfill(h.fake, solana.MustPublicKeyFromBase58(ev.Randomness), ledgertest.RandomnessFor(2)))
	_, err := h.client.SettleWager(context.Background(), solana.MustPublicKeyFromBase58(ev.Wager))
	require.NoError(t, err)

	h.worker(nil, false).Process(context.Background(), ev, raw)

	settled, _ := h.rec.snapshot()
	require.Len(t, settled, 1)
	assert.Equal(t, "SETTLED", settled[0].Status)
	// 2 é preto
	assert.False(t, settled[0].Won)
	assert.Equal(t, 1, h.fake.Count("resolve_bet"))
}

func TestProcessGivesUpToDLQ(t *testing.T) {
	h := newHarness(t)
	ev, raw := h.place(t, codec.Odd(), 10)

	h.worker(nil, false).Process(context.Background(), ev, raw)

	settled, dlq := h.rec.snapshot()
	assert.Empty(t, settled)
	require.Len(t, dlq, 1)
	assert.JSONEq(t, string(raw), string(dlq[0]))
	assert.Zero(t, h.fake.Count("resolve_bet"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Failures.WithLabelValues("settle")))
}

func TestProcessAutoReclaimsExpired(t *testing.T) {
	h := newHarness(t)
	ev, raw := h.place(t, codec.Dozen(2), 40)
	h.advance(protocol.BetTimeout + time.Minute)

	h.worker(nil, true).Process(context.Background(), ev, raw)

	settled, dlq := h.rec.snapshot()
	assert.Empty(t, dlq)
	require.Len(t, settled, 1)
	assert.Equal(t, "EXPIRED", settled[0].Status)
	assert.Equal(t, 1, h.fake.Count("refund_expired_bet"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.WagersSettled.WithLabelValues("expired")))
}

func TestProcessInvalidAddress(t *testing.T) {
	h := newHarness(t)
	h.worker(nil, false).Process(context.Background(), events.WagerPlaced{Wager: "nope"}, []byte(`{}`))

	settled, dlq := h.rec.snapshot()
	assert.Empty(t, settled)
	assert.Empty(t, dlq)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Failures.WithLabelValues("decode")))
}

func TestRunConsumesAndCommits(t *testing.T) {
	h := newHarness(t)
	ev, raw := h.place(t, codec.Straight(17), 100)
	require.NoError(t, h.prog.Fulfill(h.fake, solana.MustPublicKeyFromBase58(ev.Randomness), ledgertest.RandomnessFor(17)))

	r := &chanReader{ch: make(chan kafkago.Message, 2)}
	r.ch <- kafkago.Message{Value: []byte("not json")}
	r.ch <- kafkago.Message{Key: []byte(ev.Wager), Value: raw}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker(r, false).Run(ctx) }()

	require.Eventually(t, func() bool { return r.commits() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	settled, _ := h.rec.snapshot()
	require.Len(t, settled, 1)
	assert.Equal(t, ev.Wager, settled[0].Wager)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Failures.WithLabelValues("decode")))
}

func (r *recorder) transitionsOf(addr string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions[addr]...)
}

func TestProcessShutdownLeavesWagerForRedelivery(t *testing.T) {
	h := newHarness(t)
	ev, raw := h.place(t, codec.Odd(), 10)

	w := h.worker(nil, false)
	w.MaxWait = 5 * time.Second
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	handled := w.Process(ctx, ev, raw)

	assert.False(t, handled)
	settled, dlq := h.rec.snapshot()
	assert.Empty(t, settled)
	assert.Empty(t, dlq)
	assert.Zero(t, testutil.ToFloat64(h.m.Failures.WithLabelValues("settle")))
}

func TestProcessMaxWaitStillGoesToDLQ(t *testing.T) {
	h := newHarness(t)
	ev, raw := h.place(t, codec.Even(), 10)

	w := h.worker(nil, false)
	w.MaxWait = 40 * time.Millisecond
	w.Retries = 50

	assert.True(t, w.Process(context.Background(), ev, raw))
	_, dlq := h.rec.snapshot()
	assert.Len(t, dlq, 1)
}

func TestRunShutdownDoesNotCommitInFlight(t *testing.T) {
	h := newHarness(t)
	ev, raw := h.place(t, codec.High(), 10)

	r := &chanReader{ch: make(chan kafkago.Message, 1)}
	r.ch <- kafkago.Message{Key: []byte(ev.Wager), Value: raw}

	w := h.worker(r, false)
	w.MaxWait = 5 * time.Second
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(h.rec.transitionsOf(ev.Wager)) > 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Zero(t, r.commits())
	_, dlq := h.rec.snapshot()
	assert.Empty(t, dlq)
}
