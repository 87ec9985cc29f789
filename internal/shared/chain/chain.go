package chain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/shared/config"
	"github.com/radieske/roulette-vrf-client/internal/shared/metrics"
)

// BackoffKey é a chave Redis compartilhada pelo portão de rate limit
const BackoffKey = "roulette:rpc:backoff"

// ProtocolConfig converte os endereços textuais da configuração
func ProtocolConfig(c config.Ledger) (protocol.Config, error) {
	var (
		out protocol.Config
		err error
	)
	if out.Program, err = parseKey("ROULETTE_PROGRAM_ID", c.ProgramID); err != nil {
		return out, err
	}
	if out.VRF, err = parseKey("ORAO_VRF_PROGRAM_ID", c.VRFProgramID); err != nil {
		return out, err
	}
	if out.StakeMint, err = parseKey("STAKE_MINT", c.StakeMint); err != nil {
		return out, err
	}
	if out.GovMint, err = parseKey("GOV_MINT", c.GovMint); err != nil {
		return out, err
	}
	return out, nil
}

func parseKey(name, v string) (solana.PublicKey, error) {
	if v == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", name)
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", name, err)
	}
	return pk, nil
}

// Connect monta o adaptador RPC e o cliente de protocolo. Com rdb != nil o
// portão de back-off é compartilhado entre processos via Redis.
func Connect(c config.Ledger, rdb *redis.Client, m *metrics.Roulette, log *zap.Logger) (*ledger.RPC, *protocol.Client, error) {
	pcfg, err := ProtocolConfig(c)
	if err != nil {
		return nil, nil, err
	}
	signer, err := ledger.LoadKeypair(c.WalletKeypair)
	if err != nil {
		return nil, nil, err
	}
	opts := ledger.Options{RateLimitBackoff: c.RateLimitBackoff}
	if rdb != nil {
		opts.Backoff = ledger.NewRedisBackoff(rdb, BackoffKey)
	}
	if m != nil {
		opts.OnRateLimited = m.OnRateLimited
		opts.OnSubmitted = m.OnSubmitted
	}
	rpcLedger := ledger.NewRPC(c.RPCURL, signer, log, opts)
	return rpcLedger, protocol.New(rpcLedger, pcfg, log), nil
}
