package ledgertest

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/radieske/roulette-vrf-client/internal/roulette/address"
	"github.com/radieske/roulette-vrf-client/internal/roulette/codec"
	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
	"github.com/radieske/roulette-vrf-client/internal/roulette/wheel"
)

// Program reproduz em memória os efeitos das instruções da mesa sobre o Fake.
// Instale com fake.OnSubmit = program.Handle.
type Program struct {
	addr address.Deriver
	Now  func() time.Time
}

func NewProgram(programID, vrfID solana.PublicKey) *Program {
	return &Program{addr: address.New(programID, vrfID), Now: time.Now}
}

const operatorThreshold = 51

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: custom program error: %s", ledger.ErrRejected, fmt.Sprintf(format, args...))
}

func put(f *Fake, addr solana.PublicKey, rec interface{ MarshalBinary() ([]byte, error) }) error {
	buf, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	f.SetAccount(addr, buf)
	return nil
}

func transfer(f *Fake, from, to solana.PublicKey, amount uint64) error {
	if f.balances[from] < amount {
		return reject("insufficient funds in %s", from)
	}
	f.balances[from] -= amount
	f.balances[to] += amount
	return nil
}

// Handle aplica as instruções em ordem; falhou uma, a transação inteira falha
// (o estado parcial não é desfeito, o que basta para os testes).
func (p *Program) Handle(f *Fake, _ string, ixs []solana.Instruction) error {
	for _, ix := range ixs {
		if err := p.apply(f, ix); err != nil {
			return err
		}
	}
	return nil
}

func (p *Program) apply(f *Fake, ix solana.Instruction) error {
	keys := make([]solana.PublicKey, 0, len(ix.Accounts()))
	for _, m := range ix.Accounts() {
		keys = append(keys, m.PublicKey)
	}
	if ix.ProgramID().Equals(solana.SPLAssociatedTokenAccountProgramID) {
		// payer, ata, wallet, mint, ...
		if _, ok := f.balances[keys[1]]; ok {
			return reject("account %s already in use", keys[1])
		}
		f.balances[keys[1]] = 0
		return nil
	}
	if !ix.ProgramID().Equals(p.addr.Program) {
		return reject("unknown program %s", ix.ProgramID())
	}
	data, err := ix.Data()
	if err != nil {
		return err
	}
	def, ok := codec.LookupInstruction(data)
	if !ok {
		return reject("unknown instruction")
	}

	switch def.Name {
	case codec.IxInitGlobal.Name:
		return p.initGlobal(f, keys)
	case codec.IxCreateTable.Name:
		args, err := codec.DecodeCreateTable(data)
		if err != nil {
			return err
		}
		return p.createTable(f, keys, args)
	case codec.IxDepositLiquidity.Name:
		amount, err := codec.DecodeAmount(def, data)
		if err != nil {
			return err
		}
		return transfer(f, keys[1], keys[3], amount)
	case codec.IxDepositGov.Name, codec.IxWithdrawGov.Name:
		amount, err := codec.DecodeAmount(def, data)
		if err != nil {
			return err
		}
		return p.gov(f, keys, amount, def.Name == codec.IxDepositGov.Name)
	case codec.IxClaimOperator.Name:
		return p.claimOperator(f, keys)
	case codec.IxSetMode.Name, codec.IxPause.Name, codec.IxUnpause.Name, codec.IxRequestWithdraw.Name:
		return p.onlyOperator(f, keys, def, data)
	case codec.IxExecuteWithdraw.Name:
		amount, err := codec.DecodeAmount(def, data)
		if err != nil {
			return err
		}
		return p.executeWithdraw(f, keys, amount)
	case codec.IxPlaceBet.Name:
		args, err := codec.DecodePlaceBet(data)
		if err != nil {
			return err
		}
		return p.placeBet(f, keys, args)
	case codec.IxResolveBet.Name:
		return p.resolveBet(f, keys)
	case codec.IxRefundExpiredBet.Name:
		return p.refund(f, keys)
	}
	return reject("unhandled instruction %s", def.Name)
}

func (p *Program) table(f *Fake, addr solana.PublicKey) (*codec.Table, error) {
	buf, ok := f.Lookup(addr)
	if !ok {
		return nil, reject("table %s not initialized", addr)
	}
	return codec.DecodeTable(buf)
}

func (p *Program) global(f *Fake, addr solana.PublicKey) (*codec.GlobalState, error) {
	buf, ok := f.Lookup(addr)
	if !ok {
		return nil, reject("global %s not initialized", addr)
	}
	return codec.DecodeGlobalState(buf)
}

func (p *Program) wager(f *Fake, addr solana.PublicKey) (*codec.Wager, error) {
	buf, ok := f.Lookup(addr)
	if !ok {
		return nil, reject("bet %s not initialized", addr)
	}
	return codec.DecodeWager(buf)
}

func (p *Program) initGlobal(f *Fake, keys []solana.PublicKey) error {
	mint, global, vault := keys[1], keys[2], keys[3]
	if _, ok := f.Lookup(global); ok {
		return reject("account %s already in use", global)
	}
	f.balances[vault] = 0
	return put(f, global, &codec.GlobalState{StakeMint: mint, Vault: vault})
}

func (p *Program) createTable(f *Fake, keys []solana.PublicKey, args codec.CreateTableArgs) error {
	creator, stakeMint, govMint, table, govVault, global := keys[0], keys[1], keys[2], keys[3], keys[4], keys[5]
	if args.MinStake == 0 || args.MaxStake < args.MinStake {
		return reject("InvalidBetRange")
	}
	if _, ok := f.Lookup(table); ok {
		return reject("account %s already in use", table)
	}
	f.balances[govVault] = 0
	return put(f, table, &codec.Table{
		Seed:        args.Seed,
		Creator:     creator,
		Operator:    creator,
		Mode:        args.Mode,
		StakeMint:   stakeMint,
		GovMint:     govMint,
		GlobalState: global,
		GovVault:    govVault,
		MinStake:    args.MinStake,
		MaxStake:    args.MaxStake,
	})
}

func (p *Program) gov(f *Fake, keys []solana.PublicKey, amount uint64, deposit bool) error {
	depositor, ata, tableAddr, govVault, depAddr := keys[0], keys[1], keys[2], keys[3], keys[4]
	t, err := p.table(f, tableAddr)
	if err != nil {
		return err
	}
	dep := &codec.GovDeposit{Table: tableAddr, Depositor: depositor}
	if buf, ok := f.Lookup(depAddr); ok {
		if dep, err = codec.DecodeGovDeposit(buf); err != nil {
			return err
		}
	}
	if deposit {
		if err := transfer(f, ata, govVault, amount); err != nil {
			return err
		}
		dep.Amount += amount
		return put(f, depAddr, dep)
	}
	if t.Operator.Equals(depositor) && dep.Amount-amount < operatorThreshold {
		return reject("OperatorCantDropBelowThreshold")
	}
	if dep.Amount < amount {
		return reject("InsufficientGovDeposit")
	}
	if err := transfer(f, govVault, ata, amount); err != nil {
		return err
	}
	dep.Amount -= amount
	return put(f, depAddr, dep)
}

func (p *Program) claimOperator(f *Fake, keys []solana.PublicKey) error {
	tableAddr, depAddr, depositor := keys[0], keys[1], keys[2]
	t, err := p.table(f, tableAddr)
	if err != nil {
		return err
	}
	buf, ok := f.Lookup(depAddr)
	if !ok {
		return reject("NotEnoughGovToOperate")
	}
	dep, err := codec.DecodeGovDeposit(buf)
	if err != nil {
		return err
	}
	if dep.Amount < operatorThreshold {
		return reject("NotEnoughGovToOperate")
	}
	t.Operator = depositor
	return put(f, tableAddr, t)
}

func (p *Program) onlyOperator(f *Fake, keys []solana.PublicKey, def codec.Instruction, data []byte) error {
	op, tableAddr := keys[0], keys[1]
	t, err := p.table(f, tableAddr)
	if err != nil {
		return err
	}
	if !t.Operator.Equals(op) {
		return reject("Unauthorized")
	}
	switch def.Name {
	case codec.IxSetMode.Name:
		mode, err := codec.DecodeSetMode(data)
		if err != nil {
			return err
		}
		t.Mode = mode
	case codec.IxPause.Name:
		t.Paused = true
	case codec.IxUnpause.Name:
		t.Paused = false
	case codec.IxRequestWithdraw.Name:
		amount, err := codec.DecodeAmount(def, data)
		if err != nil {
			return err
		}
		if t.Mode != codec.ModePublic {
			return reject("NotInPublicMode")
		}
		if t.ActiveBets != 0 || t.LockedLiability != 0 {
			return reject("LiabilityLocked")
		}
		t.WithdrawRequestAmount = amount
		t.WithdrawRequestTS = p.Now().Unix()
	}
	return put(f, tableAddr, t)
}

func (p *Program) executeWithdraw(f *Fake, keys []solana.PublicKey, amount uint64) error {
	op, ata, tableAddr, vault := keys[0], keys[1], keys[2], keys[4]
	t, err := p.table(f, tableAddr)
	if err != nil {
		return err
	}
	if !t.Operator.Equals(op) {
		return reject("Unauthorized")
	}
	if t.ActiveBets != 0 || t.LockedLiability != 0 {
		return reject("LiabilityLocked")
	}
	if t.Mode == codec.ModePublic {
		if t.WithdrawRequestAmount != amount {
			return reject("WithdrawRequestMismatch")
		}
		if p.Now().Unix()-t.WithdrawRequestTS < int64((48 * time.Hour).Seconds()) {
			return reject("WithdrawDelayNotPassed")
		}
		t.WithdrawRequestAmount, t.WithdrawRequestTS = 0, 0
	}
	if err := transfer(f, vault, ata, amount); err != nil {
		return err
	}
	return put(f, tableAddr, t)
}

func (p *Program) placeBet(f *Fake, keys []solana.PublicKey, args codec.PlaceBetArgs) error {
	player, ata, tableAddr, globalAddr, vault, betAddr, random := keys[0], keys[1], keys[2], keys[3], keys[4], keys[5], keys[6]
	t, err := p.table(f, tableAddr)
	if err != nil {
		return err
	}
	gs, err := p.global(f, globalAddr)
	if err != nil {
		return err
	}
	expected, _, err := p.addr.Bet(tableAddr, player, t.BetSeq)
	if err != nil {
		return err
	}
	if !expected.Equals(betAddr) {
		return reject("ConstraintSeeds: bet")
	}
	if _, ok := f.Lookup(betAddr); ok {
		return reject("account %s already in use", betAddr)
	}
	if t.Paused {
		return reject("Paused")
	}
	if args.Stake < t.MinStake || args.Stake > t.MaxStake {
		return reject("InvalidStake")
	}
	if err := wheel.Validate(args.Kind); err != nil {
		return reject("%v", err)
	}
	m, _ := wheel.Multiplier(args.Kind)
	maxPayout, err := wheel.MaxPayout(args.Stake, m)
	if err != nil {
		return reject("MathOverflow")
	}
	available := uint64(0)
	if f.balances[vault] > gs.LockedLiability {
		available = f.balances[vault] - gs.LockedLiability
	}
	if available < maxPayout {
		return reject("InsufficientLiquidity")
	}
	if err := transfer(f, ata, vault, args.Stake); err != nil {
		return err
	}

	t.LockedLiability += maxPayout
	t.ActiveBets++
	t.BetSeq++
	gs.LockedLiability += maxPayout
	gs.ActiveBets++
	if err := put(f, tableAddr, t); err != nil {
		return err
	}
	if err := put(f, globalAddr, gs); err != nil {
		return err
	}
	if err := put(f, random, &codec.Randomness{Version: 2, Client: player, Seed: args.Force}); err != nil {
		return err
	}
	return put(f, betAddr, &codec.Wager{
		Table:      tableAddr,
		Player:     player,
		Stake:      args.Stake,
		Multiplier: m,
		MaxPayout:  maxPayout,
		Kind:       args.Kind,
		State:      codec.WagerPending,
		CreatedTS:  p.Now().Unix(),
		Force:      args.Force,
		Randomness: random,
	})
}

// release devolve o passivo travado pela aposta à mesa e ao pool
func (p *Program) release(f *Fake, tableAddr, globalAddr solana.PublicKey, w *codec.Wager) error {
	t, err := p.table(f, tableAddr)
	if err != nil {
		return err
	}
	gs, err := p.global(f, globalAddr)
	if err != nil {
		return err
	}
	t.LockedLiability -= min(t.LockedLiability, w.MaxPayout)
	t.ActiveBets -= min(t.ActiveBets, 1)
	gs.LockedLiability -= min(gs.LockedLiability, w.MaxPayout)
	gs.ActiveBets -= min(gs.ActiveBets, 1)
	if err := put(f, tableAddr, t); err != nil {
		return err
	}
	return put(f, globalAddr, gs)
}

func (p *Program) resolveBet(f *Fake, keys []solana.PublicKey) error {
	tableAddr, betAddr, ata, globalAddr, vault, random := keys[1], keys[2], keys[3], keys[4], keys[5], keys[6]
	w, err := p.wager(f, betAddr)
	if err != nil {
		return err
	}
	if w.State != codec.WagerPending {
		return reject("BetNotPending")
	}
	buf, ok := f.Lookup(random)
	if !ok {
		return reject("RandomnessDecodeFailed")
	}
	r, err := codec.DecodeRandomness(buf)
	if err != nil {
		return reject("RandomnessDecodeFailed")
	}
	if !r.Fulfilled() {
		return reject("RandomnessNotFulfilled")
	}
	n := wheel.Outcome(r.Randomness)
	_, payout, err := wheel.Grade(w.Kind, w.Stake, w.Multiplier, n)
	if err != nil {
		return reject("PayoutOverflow")
	}
	if payout > 0 {
		if err := transfer(f, vault, ata, payout); err != nil {
			return err
		}
	}
	if err := p.release(f, tableAddr, globalAddr, w); err != nil {
		return err
	}
	w.State = codec.WagerSettled
	w.Outcome = codec.OptionU8{Value: n, Set: true}
	return put(f, betAddr, w)
}

func (p *Program) refund(f *Fake, keys []solana.PublicKey) error {
	tableAddr, betAddr, ata, globalAddr, vault := keys[1], keys[2], keys[3], keys[4], keys[5]
	w, err := p.wager(f, betAddr)
	if err != nil {
		return err
	}
	if w.State != codec.WagerPending {
		return reject("BetNotPending")
	}
	if p.Now().Unix()-w.CreatedTS < 1800 {
		return reject("BetNotExpired")
	}
	if err := transfer(f, vault, ata, w.Stake); err != nil {
		return err
	}
	if err := p.release(f, tableAddr, globalAddr, w); err != nil {
		return err
	}
	w.State = codec.WagerReclaimed
	return put(f, betAddr, w)
}

// Fulfill faz o papel do oráculo: consolida a aleatoriedade do pedido
func (p *Program) Fulfill(f *Fake, request solana.PublicKey, randomness [64]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.Lookup(request)
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, request)
	}
	r, err := codec.DecodeRandomness(buf)
	if err != nil {
		return err
	}
	r.Variant = codec.RandomnessFulfilled
	r.Randomness = randomness
	r.Responses = nil
	return put(f, request, r)
}

// RandomnessFor devolve 64 bytes cujo sorteio resulta em n
func RandomnessFor(n uint8) [64]byte {
	var r [64]byte
	r[0] = n
	return r
}

// InstallVRFConfig grava a configuração do colaborador com a tesouraria dada
func (p *Program) InstallVRFConfig(f *Fake, treasury solana.PublicKey) error {
	cfg, _, err := p.addr.VRFConfig()
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return put(f, cfg, &codec.NetworkState{Treasury: treasury})
}
