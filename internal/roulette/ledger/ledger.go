// Package ledger isola o acesso à rede: leitura de contas, saldos de token e
// submissão de transações assinadas.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Commitment é o nível de confirmação exigido numa leitura
type Commitment string

const (
	Confirmed Commitment = "confirmed"
	Finalized Commitment = "finalized"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrRejected           = errors.New("transaction rejected")
)

// Ledger é o que o cliente de protocolo precisa da rede
type Ledger interface {
	Account(ctx context.Context, addr solana.PublicKey, level Commitment) ([]byte, error)
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey, level Commitment) (uint64, error)
	Submit(ctx context.Context, name string, ixs ...solana.Instruction) (solana.Signature, error)
	Payer() solana.PublicKey
}

// SubmitError preserva o diagnóstico de uma submissão que falhou: nome da
// instrução e contas envolvidas, já que os logs do programa não são visíveis aqui.
type SubmitError struct {
	Instruction string
	Accounts    []solana.PublicKey
	Signature   solana.Signature
	Err         error
}

func (e *SubmitError) Error() string {
	accs := make([]string, len(e.Accounts))
	for i, a := range e.Accounts {
		accs[i] = a.String()
	}
	msg := fmt.Sprintf("submit %s [%s]", e.Instruction, strings.Join(accs, ","))
	if e.Signature != (solana.Signature{}) {
		msg += " sig=" + e.Signature.String()
	}
	return msg + ": " + e.Err.Error()
}

func (e *SubmitError) Unwrap() error { return e.Err }

// AccountsOf lista as contas referenciadas pelas instruções, sem repetição
func AccountsOf(ixs ...solana.Instruction) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	var out []solana.PublicKey
	for _, ix := range ixs {
		for _, m := range ix.Accounts() {
			if _, ok := seen[m.PublicKey]; ok {
				continue
			}
			seen[m.PublicKey] = struct{}{}
			out = append(out, m.PublicKey)
		}
	}
	return out
}

// só o texto do transporte; logs de programa e chaves base58 também contêm "429"
var rateLimitText = regexp.MustCompile(`(?i)too many requests|\b(?:http|status code:?)\s*429\b`)

// IsRateLimited reconhece o 429 do provedor de RPC. O status tipado do
// transporte tem prioridade; um erro do nó (simulação, preflight) só conta
// quando o próprio código é 429.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == http.StatusTooManyRequests
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == http.StatusTooManyRequests ||
			strings.Contains(strings.ToLower(rpcErr.Message), "too many requests")
	}
	return rateLimitText.MatchString(err.Error())
}
