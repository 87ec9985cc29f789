// Package ledgertest traz um Ledger em memória para testes do cliente e do orquestrador.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/radieske/roulette-vrf-client/internal/roulette/ledger"
)

type Submission struct {
	Name         string
	Instructions []solana.Instruction
}

// Fake guarda contas e saldos em mapas. OnSubmit faz o papel do programa:
// recebe as instruções e altera o estado como a rede faria.
type Fake struct {
	mu        sync.Mutex
	payer     solana.PublicKey
	accounts  map[solana.PublicKey][]byte
	balances  map[solana.PublicKey]uint64
	stale     map[staleKey]staleView
	submitted []Submission

	OnSubmit func(f *Fake, name string, ixs []solana.Instruction) error
	// ReadErr, quando definido, é devolvido por todas as leituras
	ReadErr error
}

type staleKey struct {
	addr  solana.PublicKey
	level ledger.Commitment
}

type staleView struct {
	data      []byte
	remaining int
}

func New(payer solana.PublicKey) *Fake {
	return &Fake{
		payer:    payer,
		accounts: make(map[solana.PublicKey][]byte),
		balances: make(map[solana.PublicKey]uint64),
		stale:    make(map[staleKey]staleView),
	}
}

func (f *Fake) Payer() solana.PublicKey { return f.payer }

// SetAccount grava a conta; chamado sem lock a partir de OnSubmit também
func (f *Fake) SetAccount(addr solana.PublicKey, data []byte) {
	f.accounts[addr] = append([]byte(nil), data...)
}

func (f *Fake) Put(addr solana.PublicKey, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetAccount(addr, data)
}

// Lookup lê sem lock; para uso dentro de OnSubmit
func (f *Fake) Lookup(addr solana.PublicKey) ([]byte, bool) {
	d, ok := f.accounts[addr]
	return d, ok
}

func (f *Fake) Get(addr solana.PublicKey) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.accounts[addr]
	return d, ok
}

func (f *Fake) SetBalance(tokenAccount solana.PublicKey, amount uint64) {
	f.balances[tokenAccount] = amount
}

func (f *Fake) PutBalance(tokenAccount solana.PublicKey, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetBalance(tokenAccount, amount)
}

func (f *Fake) Balance(tokenAccount solana.PublicKey) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[tokenAccount]
}

// Stale faz as próximas n leituras "confirmed" de addr devolverem data,
// simulando um nó atrasado. Leituras "finalized" veem o estado real, salvo Lagging.
func (f *Fake) Stale(addr solana.PublicKey, data []byte, n int) {
	f.setStale(addr, ledger.Confirmed, data, n)
}

// Lagging faz o mesmo para leituras "finalized", que andam atrás das confirmed
func (f *Fake) Lagging(addr solana.PublicKey, data []byte, n int) {
	f.setStale(addr, ledger.Finalized, data, n)
}

func (f *Fake) setStale(addr solana.PublicKey, level ledger.Commitment, data []byte, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale[staleKey{addr, level}] = staleView{data: append([]byte(nil), data...), remaining: n}
}

func (f *Fake) Account(_ context.Context, addr solana.PublicKey, level ledger.Commitment) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	key := staleKey{addr, level}
	if v, ok := f.stale[key]; ok && v.remaining > 0 {
		v.remaining--
		f.stale[key] = v
		return append([]byte(nil), v.data...), nil
	}
	d, ok := f.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	return append([]byte(nil), d...), nil
}

func (f *Fake) TokenBalance(_ context.Context, tokenAccount solana.PublicKey, _ ledger.Commitment) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	b, ok := f.balances[tokenAccount]
	if !ok {
		return 0, fmt.Errorf("%w: token account %s", ledger.ErrAccountNotFound, tokenAccount)
	}
	return b, nil
}

func (f *Fake) Submit(_ context.Context, name string, ixs ...solana.Instruction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, Submission{Name: name, Instructions: ixs})
	if f.OnSubmit != nil {
		if err := f.OnSubmit(f, name, ixs); err != nil {
			return solana.Signature{}, &ledger.SubmitError{Instruction: name, Accounts: ledger.AccountsOf(ixs...), Err: err}
		}
	}
	var sig solana.Signature
	sig[0] = byte(len(f.submitted))
	return sig, nil
}

func (f *Fake) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submitted...)
}

// Count devolve quantas submissões com o nome dado aconteceram
func (f *Fake) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.submitted {
		if s.Name == name {
			n++
		}
	}
	return n
}
