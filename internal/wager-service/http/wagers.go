package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/roulette/settlement"
	"github.com/radieske/roulette-vrf-client/internal/roulette/wheel"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/dto"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/repo"
	"github.com/radieske/roulette-vrf-client/pkg/contracts/events"
)

func parseKind(k dto.Kind) (codec.WagerKind, error) {
	args := make([]uint8, len(k.Args))
	for i, a := range k.Args {
		if a < 0 || a > 255 {
			return codec.WagerKind{}, fmt.Errorf("%w: argument %d out of range", protocol.ErrInvalidWager, a)
		}
		args[i] = uint8(a)
	}
	kind, err := codec.ParseWagerKind(k.Type, args)
	if err != nil && !errors.Is(err, codec.ErrUnknownVariantTag) {
		return codec.WagerKind{}, fmt.Errorf("%w: %v", protocol.ErrInvalidWager, err)
	}
	return kind, err
}

// orchestrator cria um orquestrador de uma única aposta cujo observador
// grava o journal e publica o status
func (s *Server) orchestrator(window time.Duration) *settlement.Orchestrator {
	return settlement.New(s.proto, s.log, settlement.Options{
		PollInterval: s.PollInterval,
		Window:       window,
		Observer:     s.observe,
	})
}

func (s *Server) observe(st settlement.Status) {
	if st.Wager == (solana.PublicKey{}) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch st.State {
	case settlement.AwaitingRandomness, settlement.Ready, settlement.Settled, settlement.Expired, settlement.Failed:
		if err := s.journal.Transition(ctx, st.Wager.String(), string(st.State), st.Reason); err != nil && !errors.Is(err, repo.ErrNotFound) {
			s.log.Warn("journal transition", zap.String("wager", st.Wager.String()), zap.Error(err))
			if s.m != nil {
				s.m.OnError("journal")
			}
		}
	}
	if s.status == nil {
		return
	}
	if err := s.status.PublishStatus(ctx, StatusEvent(st)); err != nil {
		s.log.Warn("status publish", zap.String("wager", st.Wager.String()), zap.Error(err))
	}
}

// StatusEvent converte o status do orquestrador no payload publicado
func StatusEvent(st settlement.Status) events.WagerStatus {
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

func (s *Server) placeWager(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceWagerRequest
	if !decode(w, r, &req) {
		return
	}
	table, err := solana.PublicKeyFromBase58(req.Table)
	if err != nil {
		http.Error(w, "invalid table address", http.StatusBadRequest)
		return
	}
	kind, err := parseKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	force, err := protocol.NewCommitment()
	if err != nil {
		s.fail(w, "place", err)
		return
	}

	o := s.orchestrator(0)
	p, err := o.Place(r.Context(), protocol.WagerRequest{Table: table, Kind: kind, Stake: req.Stake, Force: force})
	if err != nil {
		s.fail(w, "place", err)
		return
	}
	if s.m != nil {
		s.m.WagersPlaced.Inc()
	}

	// a aposta já está na rede; falhas daqui em diante só são registradas
	if err := s.journal.CreateAwaiting(r.Context(), &repo.Wager{
		Address:    p.Wager.String(),
		Table:      p.Table.String(),
		Player:     p.Player.String(),
		Randomness: p.Randomness.String(),
		BetSeq:     p.BetSeq,
		Kind:       p.Kind.String(),
		Stake:      p.Stake,
		Signature:  p.Signature.String(),
	}); err != nil {
		s.log.Error("journal insert", zap.String("wager", p.Wager.String()), zap.Error(err))
		if s.m != nil {
			s.m.OnError("journal")
		}
	}
	if err := s.publ.PublishWagerPlaced(r.Context(), events.WagerPlaced{
		Wager:      p.Wager.String(),
		Table:      p.Table.String(),
		Player:     p.Player.String(),
		Randomness: p.Randomness.String(),
		BetSeq:     p.BetSeq,
		Kind:       p.Kind.String(),
		Stake:      p.Stake,
		Multiplier: p.Multiplier,
		MaxPayout:  p.MaxPayout,
		Signature:  p.Signature.String(),
	}); err != nil {
		s.log.Error("publish wager_placed", zap.String("wager", p.Wager.String()), zap.Error(err))
		if s.m != nil {
			s.m.OnError("publish")
		}
	}

	writeJSONStatus(w, http.StatusCreated, dto.PlaceWagerResponse{
		Wager:      p.Wager.String(),
		Randomness: p.Randomness.String(),
		BetSeq:     p.BetSeq,
		Multiplier: p.Multiplier,
		MaxPayout:  p.MaxPayout,
		Signature:  p.Signature.String(),
		Status:     string(o.Status().State),
	})
}

func (s *Server) getWager(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	wg, err := s.proto.Wager(r.Context(), addr, ledger.Confirmed)
	if err != nil {
		s.fail(w, "read_wager", err)
		return
	}
	resp := dto.WagerResponse{
		Wager:      addr.String(),
		Table:      wg.Table.String(),
		Player:     wg.Player.String(),
		Randomness: wg.Randomness.String(),
		Kind:       wg.Kind.String(),
		Stake:      wg.Stake,
		Multiplier: wg.Multiplier,
		MaxPayout:  wg.MaxPayout,
		State:      wg.State.String(),
		ExpiresAt:  protocol.ExpiresAt(wg).UTC(),
	}
	if wg.Settled() {
		won, payout, err := wheel.Grade(wg.Kind, wg.Stake, wg.Multiplier, wg.Outcome.Value)
		if err != nil {
			s.fail(w, "read_wager", err)
			return
		}
		outcome := wg.Outcome.Value
		resp.Outcome, resp.Won, resp.Payout = &outcome, &won, &payout
	}
	if row, err := s.journal.Get(r.Context(), addr.String()); err == nil {
		resp.Status = row.Status
	} else if !errors.Is(err, repo.ErrNotFound) {
		s.log.Warn("journal read", zap.String("wager", addr.String()), zap.Error(err))
	}
	writeJSON(w, resp)
}

// wagerHistory lista as transições gravadas no journal
func (s *Server) wagerHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	hist, err := s.journal.History(r.Context(), addr.String())
	if err != nil {
		s.fail(w, "read_history", err)
		return
	}
	if len(hist) == 0 {
		http.Error(w, "wager not journaled", http.StatusNotFound)
		return
	}
	resp := dto.HistoryResponse{Wager: addr.String(), Transitions: make([]dto.TransitionResponse, len(hist))}
	for i, t := range hist {
		resp.Transitions[i] = dto.TransitionResponse{From: t.OldStatus, To: t.NewStatus, Reason: t.Reason, At: t.CreatedAt}
	}
	writeJSON(w, resp)
}

// settleWager executa um passo de liquidação: uma consulta à aleatoriedade e,
// se pronta, a liquidação. Chamadas repetidas não liquidam duas vezes.
func (s *Server) settleWager(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	o := s.orchestrator(s.PollInterval)
	st, err := o.Resume(r.Context(), addr)
	if err != nil {
		s.fail(w, "settle", err)
		return
	}

	var sig solana.Signature
	if st.State == settlement.AwaitingRandomness {
		ready, err := o.AwaitRandomness(r.Context())
		if err != nil {
			s.fail(w, "settle", err)
			return
		}
		if ready {
			res, err := o.Settle(r.Context())
			if err != nil {
				s.fail(w, "settle", err)
				return
			}
			sig = res.Signature
		}
		st = o.Status()
	}

	resp := dto.SettleResponse{
		Wager:        addr.String(),
		Status:       string(st.State),
		StillWaiting: st.StillWaiting,
		Outcome:      st.Outcome,
		Won:          st.Won,
		Payout:       st.Payout,
		Verified:     st.Verified,
	}
	if sig != (solana.Signature{}) {
		resp.Signature = sig.String()
	}
	switch st.State {
	case settlement.Settled:
		if s.m != nil && sig != (solana.Signature{}) {
			s.m.WagersSettled.WithLabelValues(result(st.Won)).Inc()
		}
		writeJSON(w, resp)
	case settlement.Expired:
		writeJSON(w, resp)
	default:
		writeJSONStatus(w, http.StatusAccepted, resp)
	}
}

func (s *Server) reclaimWager(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	o := s.orchestrator(0)
	st, err := o.Resume(r.Context(), addr)
	if err != nil {
		s.fail(w, "reclaim", err)
		return
	}
	if st.State == settlement.Expired {
		writeJSON(w, dto.ReclaimResponse{Wager: addr.String(), Already: true})
		return
	}
	res, err := o.Reclaim(r.Context())
	if err != nil {
		s.fail(w, "reclaim", err)
		return
	}
	if s.m != nil && !res.AlreadyReclaimed {
		s.m.WagersSettled.WithLabelValues("expired").Inc()
	}
	resp := dto.ReclaimResponse{Wager: addr.String(), Refunded: res.Refunded, Already: res.AlreadyReclaimed}
	if res.Signature != (solana.Signature{}) {
		resp.Signature = res.Signature.String()
	}
	writeJSON(w, resp)
}

func result(won bool) string {
	if won {
		return "won"
	}
	return "lost"
}
