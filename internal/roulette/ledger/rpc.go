package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

const (
	defaultRateLimitBackoff = 15 * time.Second
	defaultMaxAttempts      = 4
	defaultConfirmTimeout   = 60 * time.Second
	confirmPollInterval     = 500 * time.Millisecond
)

type Options struct {
	RateLimitBackoff time.Duration
	MaxAttempts      int
	ConfirmTimeout   time.Duration
	Backoff          Backoff

	// callbacks de métricas
	OnRateLimited func(op string)
	OnSubmitted   func(name string, dur time.Duration)
}

// RPC implementa Ledger sobre o JSON-RPC do cluster, assinando com uma única carteira
type RPC struct {
	client *rpc.Client
	signer solana.PrivateKey
	log    *zap.Logger
	opts   Options
}

func NewRPC(endpoint string, signer solana.PrivateKey, log *zap.Logger, opts Options) *RPC {
	if opts.RateLimitBackoff <= 0 {
		opts.RateLimitBackoff = defaultRateLimitBackoff
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	if opts.Backoff == nil {
		opts.Backoff = NewMemoryBackoff()
	}
	return &RPC{
		client: rpc.New(endpoint),
		signer: signer,
		log:    log.Named("ledger"),
		opts:   opts,
	}
}

// LoadKeypair lê uma carteira no formato JSON do solana-keygen
func LoadKeypair(path string) (solana.PrivateKey, error) {
	pk, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return pk, nil
}

func (r *RPC) Payer() solana.PublicKey { return r.signer.PublicKey() }

// Health consulta o nó; usado pelo /healthz
func (r *RPC) Health(ctx context.Context) error {
	_, err := r.client.GetHealth(ctx)
	return classify(err)
}

// call executa fn respeitando o portão de back-off. Um 429 arma o portão e
// repete; o orquestrador nunca vê o rate limit, a menos que as tentativas acabem.
func (r *RPC) call(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if werr := r.opts.Backoff.Wait(ctx); werr != nil {
			return werr
		}
		err = fn()
		if !IsRateLimited(err) {
			return err
		}
		r.log.Warn("rate limited, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", r.opts.RateLimitBackoff),
		)
		if r.opts.OnRateLimited != nil {
			r.opts.OnRateLimited(op)
		}
		if terr := r.opts.Backoff.Trip(ctx, r.opts.RateLimitBackoff); terr != nil {
			r.log.Warn("backoff gate unavailable", zap.Error(terr))
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrRateLimited, err)
}

func rpcCommitment(level Commitment) rpc.CommitmentType {
	if level == Finalized {
		return rpc.CommitmentFinalized
	}
	return rpc.CommitmentConfirmed
}

func (r *RPC) Account(ctx context.Context, addr solana.PublicKey, level Commitment) ([]byte, error) {
	var data []byte
	err := r.call(ctx, "getAccountInfo", func() error {
		out, err := r.client.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
			Commitment: rpcCommitment(level),
		})
		if err != nil {
			return err
		}
		if out == nil || out.Value == nil {
			return rpc.ErrNotFound
		}
		data = out.Value.Data.GetBinary()
		return nil
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", addr, classify(err))
	}
	return data, nil
}

func (r *RPC) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey, level Commitment) (uint64, error) {
	var amount uint64
	err := r.call(ctx, "getTokenAccountBalance", func() error {
		out, err := r.client.GetTokenAccountBalance(ctx, tokenAccount, rpcCommitment(level))
		if err != nil {
			return err
		}
		if out == nil || out.Value == nil {
			return rpc.ErrNotFound
		}
		amount, err = strconv.ParseUint(out.Value.Amount, 10, 64)
		return err
	})
	if errors.Is(err, rpc.ErrNotFound) || isMissingTokenAccount(err) {
		return 0, fmt.Errorf("%w: token account %s", ErrAccountNotFound, tokenAccount)
	}
	if err != nil {
		return 0, fmt.Errorf("read token balance %s: %w", tokenAccount, classify(err))
	}
	return amount, nil
}

// Submit assina com a carteira configurada, envia e espera "confirmed"
func (r *RPC) Submit(ctx context.Context, name string, ixs ...solana.Instruction) (solana.Signature, error) {
	start := time.Now()
	var sig solana.Signature
	err := r.call(ctx, name, func() error {
		bh, err := r.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		tx, err := solana.NewTransaction(ixs, bh.Value.Blockhash, solana.TransactionPayer(r.Payer()))
		if err != nil {
			return err
		}
		if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
			if key.Equals(r.Payer()) {
				return &r.signer
			}
			return nil
		}); err != nil {
			return fmt.Errorf("sign: %w", err)
		}
		sig, err = r.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		return err
	})
	if err == nil {
		err = r.awaitConfirmed(ctx, sig)
	}
	if err != nil {
		return sig, &SubmitError{Instruction: name, Accounts: AccountsOf(ixs...), Signature: sig, Err: classify(err)}
	}

	r.log.Info("transaction confirmed",
		zap.String("instruction", name),
		zap.String("signature", sig.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	if r.opts.OnSubmitted != nil {
		r.opts.OnSubmitted(name, time.Since(start))
	}
	return sig, nil
}

func (r *RPC) awaitConfirmed(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ConfirmTimeout)
	defer cancel()

	for {
		var status *rpc.SignatureStatusesResult
		err := r.call(ctx, "getSignatureStatuses", func() error {
			out, err := r.client.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				return err
			}
			if out != nil && len(out.Value) > 0 {
				status = out.Value[0]
			}
			return nil
		})
		if err != nil {
			return err
		}
		if status != nil {
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrRejected, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		if err := sleep(ctx, confirmPollInterval); err != nil {
			return fmt.Errorf("%w: confirmation of %s: %v", ErrNetworkUnavailable, sig, err)
		}
	}
}

func isMissingTokenAccount(err error) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == -32602
}

// classify traduz erros do RPC para a taxonomia do cliente mantendo o detalhe original
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrRejected), errors.Is(err, ErrNetworkUnavailable):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	if IsRateLimited(err) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		// erro devolvido pelo nó: simulação falhou ou transação inválida
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
}
