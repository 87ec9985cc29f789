package http

import (
	"context"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/dto"
)

// getGov mostra o depósito de governança da carteira do serviço na mesa
func (s *Server) getGov(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	t, err := s.proto.Table(r.Context(), addr, ledger.Confirmed)
	if err != nil {
		s.fail(w, "read_table", err)
		return
	}
	payer := s.proto.Payer()
	dep, err := s.proto.GovDeposit(r.Context(), addr, payer)
	if err != nil {
		s.fail(w, "read_gov", err)
		return
	}
	writeJSON(w, dto.GovResponse{
		Table:      addr.String(),
		Depositor:  payer.String(),
		Amount:     dep.Amount,
		IsOperator: t.Operator.Equals(payer),
		Threshold:  protocol.OperatorThreshold,
	})
}

func (s *Server) depositGov(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, "deposit_gov", s.proto.DepositGov)
}

func (s *Server) withdrawGov(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, "withdraw_gov", s.proto.WithdrawGov)
}

func (s *Server) claimOperator(w http.ResponseWriter, r *http.Request) {
	s.tableOp(w, r, "claim_operator", s.proto.ClaimOperator)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.tableOp(w, r, "pause", s.proto.Pause)
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	s.tableOp(w, r, "unpause", s.proto.Unpause)
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	var req dto.ModeRequest
	if !decode(w, r, &req) {
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok || req.Mode == "" {
		http.Error(w, "mode must be private or public", http.StatusBadRequest)
		return
	}
	sig, err := s.proto.SetMode(r.Context(), addr, mode)
	if err != nil {
		s.fail(w, "set_mode", err)
		return
	}
	writeJSON(w, dto.SignatureResponse{Signature: sig.String()})
}

func (s *Server) amountOp(w http.ResponseWriter, r *http.Request, stage string,
	op func(context.Context, solana.PublicKey, uint64) (solana.Signature, error)) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	var req dto.AmountRequest
	if !decode(w, r, &req) {
		return
	}
	sig, err := op(r.Context(), addr, req.Amount)
	if err != nil {
		s.fail(w, stage, err)
		return
	}
	writeJSON(w, dto.SignatureResponse{Signature: sig.String()})
}

func (s *Server) tableOp(w http.ResponseWriter, r *http.Request, stage string,
	op func(context.Context, solana.PublicKey) (solana.Signature, error)) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	sig, err := op(r.Context(), addr)
	if err != nil {
		s.fail(w, stage, err)
		return
	}
	writeJSON(w, dto.SignatureResponse{Signature: sig.String()})
}
