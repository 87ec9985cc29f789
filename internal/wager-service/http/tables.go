package http

import (
	"net/http"
	"time"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/dto"
)

func parseMode(s string) (codec.TableMode, bool) {
	switch s {
	case "", "private":
		return codec.ModePrivate, true
	case "public":
		return codec.ModePublic, true
	}
	return 0, false
}

func (s *Server) openTable(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenTableRequest
	if !decode(w, r, &req) {
		return
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		http.Error(w, "mode must be private or public", http.StatusBadRequest)
		return
	}
	addr, err := s.proto.OpenTable(r.Context(), protocol.OpenTableParams{
		Seed:     req.Seed,
		Mode:     mode,
		MinStake: req.MinStake,
		MaxStake: req.MaxStake,
	})
	if err != nil {
		s.fail(w, "open_table", err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, dto.OpenTableResponse{Table: addr.String()})
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	t, err := s.proto.Table(r.Context(), addr, ledger.Confirmed)
	if err != nil {
		s.fail(w, "read_table", err)
		return
	}
	resp := dto.TableResponse{
		Table:                 addr.String(),
		Creator:               t.Creator.String(),
		Operator:              t.Operator.String(),
		Mode:                  t.Mode.String(),
		Paused:                t.Paused,
		MinStake:              t.MinStake,
		MaxStake:              t.MaxStake,
		BetSeq:                t.BetSeq,
		ActiveBets:            t.ActiveBets,
		LockedLiability:       t.LockedLiability,
		WithdrawRequestAmount: t.WithdrawRequestAmount,
	}
	if t.WithdrawRequestTS > 0 {
		resp.WithdrawReadyAt = timePtr(time.Unix(t.WithdrawRequestTS, 0).Add(protocol.WithdrawDelay).UTC())
	}
	// liquidez é informativa; uma falha não esconde a mesa
	if liq, err := s.proto.Liquidity(r.Context(), t.StakeMint); err == nil {
		resp.Liquidity = &dto.Liquidity{
			Global:       liq.Global.String(),
			Vault:        liq.Vault.String(),
			VaultBalance: liq.VaultBalance,
			Locked:       liq.Locked,
			Available:    liq.Available(),
			ActiveBets:   liq.ActiveBets,
		}
	}
	writeJSON(w, resp)
}

func (s *Server) fundLiquidity(w http.ResponseWriter, r *http.Request) {
	s.amountOp(w, r, "fund_liquidity", s.proto.FundLiquidity)
}

func (s *Server) withdrawLiquidity(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathKey(w, r)
	if !ok {
		return
	}
	var req dto.AmountRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.proto.WithdrawLiquidity(r.Context(), addr, req.Amount)
	if err != nil {
		s.fail(w, "withdraw_liquidity", err)
		return
	}
	code := http.StatusOK
	if res.Phase == protocol.WithdrawRequested {
		code = http.StatusAccepted
	}
	writeJSONStatus(w, code, dto.WithdrawResponse{
		Phase:     string(res.Phase),
		Signature: res.Signature.String(),
		ReadyAt:   timePtr(res.ReadyAt),
	})
}
