package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/roulette/settlement"
	"github.com/radieske/roulette-vrf-client/internal/roulette/wheel"
	"github.com/radieske/roulette-vrf-client/internal/shared/metrics"
	"github.com/radieske/roulette-vrf-client/internal/wager-service/repo"
	"github.com/radieske/roulette-vrf-client/pkg/contracts/events"
)

// Protocol é o subconjunto do cliente de protocolo exposto pela API
type Protocol interface {
	settlement.Protocol
	OpenTable(ctx context.Context, p protocol.OpenTableParams) (solana.PublicKey, error)
	Table(ctx context.Context, addr solana.PublicKey, level ledger.Commitment) (*codec.Table, error)
	Liquidity(ctx context.Context, stakeMint solana.PublicKey) (*protocol.Liquidity, error)
	FundLiquidity(ctx context.Context, table solana.PublicKey, amount uint64) (solana.Signature, error)
	WithdrawLiquidity(ctx context.Context, table solana.PublicKey, amount uint64) (*protocol.WithdrawResult, error)
	GovDeposit(ctx context.Context, table, depositor solana.PublicKey) (*codec.GovDeposit, error)
	DepositGov(ctx context.Context, table solana.PublicKey, amount uint64) (solana.Signature, error)
	WithdrawGov(ctx context.Context, table solana.PublicKey, amount uint64) (solana.Signature, error)
	ClaimOperator(ctx context.Context, table solana.PublicKey) (solana.Signature, error)
	SetMode(ctx context.Context, table solana.PublicKey, mode codec.TableMode) (solana.Signature, error)
	Pause(ctx context.Context, table solana.PublicKey) (solana.Signature, error)
	Unpause(ctx context.Context, table solana.PublicKey) (solana.Signature, error)
	Payer() solana.PublicKey
	Config() protocol.Config
}

type Journal interface {
	CreateAwaiting(ctx context.Context, w *repo.Wager) error
	Get(ctx context.Context, address string) (*repo.Wager, error)
	Transition(ctx context.Context, address, status, reason string) error
	History(ctx context.Context, address string) ([]repo.Transition, error)
}

type Publisher interface {
	PublishWagerPlaced(ctx context.Context, e events.WagerPlaced) error
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, st events.WagerStatus) error
}

type Server struct {
	log     *zap.Logger
	proto   Protocol
	journal Journal
	publ    Publisher
	status  StatusPublisher
	m       *metrics.Roulette
	ws      http.HandlerFunc

	PollInterval time.Duration
}

func NewServer(log *zap.Logger, p Protocol, j Journal, pub Publisher, st StatusPublisher, m *metrics.Roulette) *Server {
	return &Server{
		log:          log.Named("http"),
		proto:        p,
		journal:      j,
		publ:         pub,
		status:       st,
		m:            m,
		PollInterval: settlement.DefaultPollInterval,
	}
}

// WithWebSocket registra o handler de /ws (Hub.HandleWS)
func (s *Server) WithWebSocket(h http.HandlerFunc) *Server {
	s.ws = h
	return s
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tables", s.openTable)
	mux.HandleFunc("GET /tables/{addr}", s.getTable)
	mux.HandleFunc("POST /tables/{addr}/liquidity", s.fundLiquidity)
	mux.HandleFunc("POST /tables/{addr}/withdraw", s.withdrawLiquidity)
	mux.HandleFunc("GET /tables/{addr}/gov", s.getGov)
	mux.HandleFunc("POST /tables/{addr}/gov/deposit", s.depositGov)
	mux.HandleFunc("POST /tables/{addr}/gov/withdraw", s.withdrawGov)
	mux.HandleFunc("POST /tables/{addr}/operator", s.claimOperator)
	mux.HandleFunc("PUT /tables/{addr}/mode", s.setMode)
	mux.HandleFunc("POST /tables/{addr}/pause", s.pause)
	mux.HandleFunc("POST /tables/{addr}/unpause", s.unpause)
	mux.HandleFunc("POST /wagers", s.placeWager)
	mux.HandleFunc("GET /wagers/{addr}", s.getWager)
	mux.HandleFunc("GET /wagers/{addr}/history", s.wagerHistory)
	mux.HandleFunc("POST /wagers/{addr}/settle", s.settleWager)
	mux.HandleFunc("POST /wagers/{addr}/reclaim", s.reclaimWager)
	if s.ws != nil {
		mux.HandleFunc("GET /ws", s.ws)
	}
	return mux
}

func pathKey(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	pk, err := solana.PublicKeyFromBase58(r.PathValue("addr"))
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return solana.PublicKey{}, false
	}
	return pk, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

// statusOf traduz os erros do protocolo para códigos HTTP
func statusOf(err error) int {
	switch {
	case errors.Is(err, protocol.ErrInvalidBounds),
		errors.Is(err, protocol.ErrStakeOutOfRange),
		errors.Is(err, protocol.ErrInvalidWager),
		errors.Is(err, protocol.ErrInvalidAmount),
		errors.Is(err, protocol.ErrInvalidMode),
		errors.Is(err, codec.ErrUnknownVariantTag):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrInsufficientLiquidity),
		errors.Is(err, protocol.ErrInsufficientBalance),
		errors.Is(err, protocol.ErrTablePaused),
		errors.Is(err, protocol.ErrLiabilityLocked),
		errors.Is(err, protocol.ErrWithdrawDelay),
		errors.Is(err, protocol.ErrNotExpired),
		errors.Is(err, protocol.ErrWagerClosed),
		errors.Is(err, settlement.ErrTerminal),
		errors.Is(err, settlement.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, codec.ErrLayoutMismatch), errors.Is(err, codec.ErrTruncatedBuffer),
		errors.Is(err, wheel.ErrPayoutOverflow):
		return http.StatusBadGateway
	case protocol.Retryable(err), ledger.IsRateLimited(err), errors.Is(err, ledger.ErrNetworkUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, stage string, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(stage+" failed", zap.Error(err))
		if s.m != nil {
			s.m.OnError(stage)
		}
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
