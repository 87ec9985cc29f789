package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
	"github.com/radieske/roulette-vrf-client/internal/shared/chain"
	"github.com/radieske/roulette-vrf-client/internal/shared/config"
	"github.com/radieske/roulette-vrf-client/internal/shared/logger"
)

func main() {
	var (
		tablesFlag  string
		showOffsets bool
		timeout     time.Duration
	)
	flag.StringVar(&tablesFlag, "tables", os.Getenv("TABLE_ADDRESSES"), "Table addresses, comma or space separated")
	flag.BoolVar(&showOffsets, "offsets", false, "Print field offsets of each table")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New("roulette-inspect", cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	tables := parseTableList(tablesFlag + " " + strings.Join(flag.Args(), " "))
	if len(tables) == 0 {
		fmt.Fprintln(os.Stderr, "no tables given (-tables or TABLE_ADDRESSES)")
		os.Exit(2)
	}

	pcfg, err := chain.ProtocolConfig(withPlaceholderMints(cfg.Ledger))
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	// leitura apenas: a carteira nunca assina nada aqui
	l := ledger.NewRPC(cfg.Ledger.RPCURL, solana.NewWallet().PrivateKey, log, ledger.Options{
		RateLimitBackoff: cfg.Ledger.RateLimitBackoff,
	})
	client := protocol.New(l, pcfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Println("rpc", cfg.Ledger.RPCURL)
	fmt.Println("program", pcfg.Program)
	fmt.Println("---")
	failed := inspect(ctx, os.Stdout, l, client, tables, showOffsets)
	if failed > 0 {
		os.Exit(1)
	}
}

// withPlaceholderMints: as mints vêm de cada mesa, não da configuração
func withPlaceholderMints(c config.Ledger) config.Ledger {
	if c.StakeMint == "" {
		c.StakeMint = solana.SystemProgramID.String()
	}
	if c.GovMint == "" {
		c.GovMint = solana.SystemProgramID.String()
	}
	return c
}
