package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/roulette-vrf-client/internal/roulette/settlement"
	"github.com/radieske/roulette-vrf-client/internal/shared/metrics"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/repo"
	"github.com/radieske/roulette-vrf-client/pkg/contracts/events"
)

const (
	defaultConcurrency = 8
	defaultRetries     = 3
)

// Reader é o subconjunto do kafka.Reader usado pelo worker
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type Journal interface {
	Transition(ctx context.Context, address, status, reason string) error
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, st events.WagerStatus) error
}

type EventPublisher interface {
	PublishWagerSettled(ctx context.Context, e events.WagerSettled) error
	PublishDLQ(ctx context.Context, key string, payload []byte) error
}

// Worker consome wager_placed e acompanha cada aposta até um estado terminal.
// Cada aposta tem seu próprio orquestrador; Concurrency limita quantas correm juntas.
type Worker struct {
	Log     *zap.Logger
	Reader  Reader
	Proto   settlement.Protocol
	Journal Journal
	Status  StatusPublisher
	Events  EventPublisher
	Metrics *metrics.Roulette

	Concurrency int
	Retries     int
	// Orchestrator: PollInterval, Window e AutoReclaim repassados a cada aposta
	Orchestrator settlement.Options
	// MaxWait limita quanto tempo uma aposta ocupa uma vaga sem chegar ao fim
	MaxWait time.Duration

	// retryDelay é sobrescrito nos testes
	retryDelay func(attempt int) time.Duration
}

// Run inicia o loop principal de consumo. Devolve quando o contexto é
// cancelado, depois que as apostas em andamento terminam.
func (w *Worker) Run(ctx context.Context) error {
	limit := w.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for {
		msg, err := w.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break // encerra se o contexto for cancelado
			}
			w.Log.Warn("kafka read failed", zap.Error(err))
			w.onError("read")
			if serr := sleep(ctx, 500*time.Millisecond); serr != nil {
				break
			}
			continue
		}

		var ev events.WagerPlaced
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			w.Log.Warn("invalid message", zap.Error(err))
			w.onError("decode")
			w.commit(ctx, msg)
			continue
		}

		g.Go(func() error {
			if w.Process(gctx, ev, msg.Value) {
				// o offset é gravado mesmo durante o desligamento
				cctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
				defer cancel()
				w.commit(cctx, msg)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (w *Worker) commit(ctx context.Context, msg kafkago.Message) {
	if err := w.Reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		w.Log.Warn("kafka commit failed", zap.Error(err))
	}
}

func (w *Worker) onError(stage string) {
	if w.Metrics != nil {
		w.Metrics.OnError(stage)
	}
}

func (w *Worker) delay(attempt int) time.Duration {
	if w.retryDelay != nil {
		return w.retryDelay(attempt)
	}
	return time.Duration(300*(attempt+1)) * time.Millisecond
}

// Process acompanha uma aposta: retoma o orquestrador a partir da rede, roda
// até um estado terminal e publica o resultado. Depois das tentativas, ou
// quando MaxWait estoura, a mensagem original vai para a DLQ.
// Devolve false quando o contexto do chamador foi cancelado antes do fim: a
// mensagem não deve ser confirmada e volta a ser entregue após o restart.
func (w *Worker) Process(ctx context.Context, ev events.WagerPlaced, raw []byte) bool {
	log := w.Log.With(zap.String("wager", ev.Wager))
	addr, err := solana.PublicKeyFromBase58(ev.Wager)
	if err != nil {
		log.Warn("invalid wager address", zap.Error(err))
		w.onError("decode")
		return true
	}

	parent := ctx
	if w.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.MaxWait)
		defer cancel()
	}

	retries := w.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	var st settlement.Status
	for attempt := 0; ; attempt++ {
		st, err = w.runOnce(ctx, addr, ev)
		if err == nil || st.State == settlement.Failed || ctx.Err() != nil || attempt >= retries {
			break
		}
		log.Warn("settlement attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if serr := sleep(ctx, w.delay(attempt)); serr != nil {
			err = serr
			break
		}
	}

	if err != nil && !st.State.Terminal() && parent.Err() != nil {
		log.Info("shutdown before terminal state, leaving for redelivery", zap.String("state", string(st.State)))
		return false
	}
	if err != nil && !st.State.Terminal() {
		log.Error("settlement gave up", zap.String("state", string(st.State)), zap.Error(err))
		w.onError("settle")
		// DLQ usa um contexto próprio; o da aposta pode ter expirado
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if derr := w.Events.PublishDLQ(dctx, ev.Wager, raw); derr != nil {
			log.Error("dlq publish", zap.Error(derr))
		}
		return true
	}
	w.finish(ctx, log, st)
	return true
}

func (w *Worker) runOnce(ctx context.Context, addr solana.PublicKey, ev events.WagerPlaced) (settlement.Status, error) {
	opts := w.Orchestrator
	opts.Observer = w.observer(ev)
	o := settlement.New(w.Proto, w.Log, opts)
	if _, err := o.Resume(ctx, addr); err != nil {
		return o.Status(), err
	}
	return o.Run(ctx)
}

// observer grava o journal, publica o status e mede a espera pela
// aleatoriedade. Só age quando o estado muda.
func (w *Worker) observer(ev events.WagerPlaced) func(settlement.Status) {
	var last settlement.State
	return func(st settlement.Status) {
		if st.State == last && !st.StillWaiting {
			return
		}
		prev := last
		last = st.State

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if st.State != prev {
			if err := w.Journal.Transition(ctx, ev.Wager, string(st.State), st.Reason); err != nil && !errors.Is(err, repo.ErrNotFound) {
				w.Log.Warn("journal transition", zap.String("wager", ev.Wager), zap.Error(err))
				w.onError("journal")
			}
			if st.State == settlement.Ready && w.Metrics != nil && !ev.PlacedAt.IsZero() {
				w.Metrics.RandomnessWait.Observe(time.Since(ev.PlacedAt).Seconds())
			}
		}
		if w.Status != nil {
			if err := w.Status.PublishStatus(ctx, statusEvent(st)); err != nil {
				w.Log.Warn("status publish", zap.String("wager", ev.Wager), zap.Error(err))
			}
		}
	}
}

func (w *Worker) finish(ctx context.Context, log *zap.Logger, st settlement.Status) {
	out := events.WagerSettled{
		Wager:    st.Wager.String(),
		Status:   string(st.State),
		Outcome:  st.Outcome,
		Won:      st.Won,
		Payout:   st.Payout,
		Verified: st.Verified,
		Reason:   st.Reason,
	}
	if w.Metrics != nil {
		switch st.State {
		case settlement.Settled:
			w.Metrics.WagersSettled.WithLabelValues(result(st.Won)).Inc()
		case settlement.Expired:
			w.Metrics.WagersSettled.WithLabelValues("expired").Inc()
		case settlement.Failed:
			w.Metrics.OnError("settle")
		}
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.Events.PublishWagerSettled(pctx, out); err != nil {
		log.Error("publish wager_settled", zap.Error(err))
		w.onError("publish")
		return
	}
	log.Info("wager finished",
		zap.String("state", out.Status),
		zap.Bool("won", out.Won),
		zap.Uint64("payout", out.Payout),
	)
}

func statusEvent(st settlement.Status) events.WagerStatus {
	return events.WagerStatus{
		Wager:        st.Wager.String(),
		State:        string(st.State),
		StillWaiting: st.StillWaiting,
		Windows:      st.Windows,
		Outcome:      st.Outcome,
		Won:          st.Won,
		Payout:       st.Payout,
		Verified:     st.Verified,
		Reason:       st.Reason,
		UpdatedAt:    st.UpdatedAt,
	}
}

func result(won bool) string {
	if won {
		return "won"
	}
	return "lost"
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
