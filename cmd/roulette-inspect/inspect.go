package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/protocol"
)

func parseTableList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// inspect decodifica cada mesa, deriva o pool global da sua mint, confere os
// discriminadores e imprime a liquidez. Devolve quantas mesas falharam.
func inspect(ctx context.Context, w io.Writer, l ledger.Ledger, client *protocol.Client, tables []string, offsets bool) int {
	failed := 0
	for _, t := range tables {
		if err := inspectTable(ctx, w, l, client, t, offsets); err != nil {
			fmt.Fprintln(w, "error", err)
			failed++
		}
		fmt.Fprintln(w, "---")
	}
	return failed
}

func inspectTable(ctx context.Context, w io.Writer, l ledger.Ledger, client *protocol.Client, raw string, offsets bool) error {
	addr, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		fmt.Fprintln(w, "table", raw, "INVALID_PUBKEY")
		return err
	}
	fmt.Fprintln(w, "table", addr)

	buf, err := l.Account(ctx, addr, ledger.Confirmed)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		fmt.Fprintln(w, "status MISSING")
		return err
	}
	if err != nil {
		return err
	}

	t, err := codec.DecodeTable(buf)
	if err != nil {
		if len(buf) >= 8 {
			fmt.Fprintf(w, "discriminator %x expected %x\n", buf[:8], codec.TableDiscriminator)
		}
		return fmt.Errorf("decode table: %w", err)
	}
	fmt.Fprintln(w, "discriminator OK")
	fmt.Fprintf(w, "layout revision=%d size=%d\n", t.Revision, len(buf))
	fmt.Fprintln(w, "creator", t.Creator)
	fmt.Fprintln(w, "operator", t.Operator)
	fmt.Fprintf(w, "mode %s paused=%t\n", t.Mode, t.Paused)
	fmt.Fprintf(w, "stake [%d, %d] bet_seq=%d active_bets=%d locked=%d\n",
		t.MinStake, t.MaxStake, t.BetSeq, t.ActiveBets, t.LockedLiability)
	fmt.Fprintln(w, "stakeMint", t.StakeMint)

	if offsets {
		offs, err := t.Layout(t.Revision).Offsets(buf)
		if err != nil {
			return fmt.Errorf("offsets: %w", err)
		}
		names := make([]string, 0, len(offs))
		for n := range offs {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool { return offs[names[i]] < offs[names[j]] })
		for _, n := range names {
			fmt.Fprintf(w, "  %4d %s\n", offs[n], n)
		}
	}

	global, _, err := client.Deriver().Global(t.StakeMint)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "globalState", global)
	if t.GlobalState != global {
		fmt.Fprintln(w, "note table.global_state differs from derived", t.GlobalState)
	}

	liq, err := client.Liquidity(ctx, t.StakeMint)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			fmt.Fprintln(w, "globalState MISSING")
		}
		return err
	}
	fmt.Fprintln(w, "globalState discriminator OK")
	fmt.Fprintln(w, "vault", liq.Vault)
	fmt.Fprintf(w, "liquidity balance=%d locked=%d available=%d active_bets=%d\n",
		liq.VaultBalance, liq.Locked, liq.Available(), liq.ActiveBets)
	return nil
}
