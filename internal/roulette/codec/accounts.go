package codec

import (
	"github.com/gagliardetto/solana-go"
)

// Discriminadores calculados uma vez a partir do nome da conta
var (
	TableDiscriminator        = AccountDiscriminator("Table")
	WagerDiscriminator        = AccountDiscriminator("BetAccount")
	GlobalStateDiscriminator  = AccountDiscriminator("GlobalState")
	GovDepositDiscriminator   = AccountDiscriminator("GovDeposit")
	NetworkStateDiscriminator = AccountDiscriminator("NetworkState")
)

// TableMode controla as regras de saque de liquidez da mesa
type TableMode uint8

const (
	ModePrivate TableMode = 0
	ModePublic  TableMode = 1
)

func (m TableMode) String() string {
	if m == ModePublic {
		return "public"
	}
	return "private"
}

// Revisões do layout da mesa: a atual acrescentou o pedido de saque pendente
const (
	TableRevisionLegacy  = 1
	TableRevisionCurrent = 2
)

type TableBumps struct {
	Table    uint8
	GovVault uint8
}

// Table é a mesa de apostas
type Table struct {
	Seed            uint64
	Creator         solana.PublicKey
	Operator        solana.PublicKey
	Mode            TableMode
	Paused          bool
	StakeMint       solana.PublicKey
	GovMint         solana.PublicKey
	GlobalState     solana.PublicKey
	GovVault        solana.PublicKey
	MinStake        uint64
	MaxStake        uint64
	LockedLiability uint64
	ActiveBets      uint32
	BetSeq          uint64

	// presentes só a partir de TableRevisionCurrent
	WithdrawRequestTS     int64
	WithdrawRequestAmount uint64

	Bumps    TableBumps
	Revision int
}

// Layout devolve a lista declarativa de campos para a revisão informada
func (t *Table) Layout(revision int) Layout {
	fields := []Field{
		fieldU64("seed", &t.Seed),
		fieldKey("creator", &t.Creator),
		fieldKey("operator", &t.Operator),
		fieldU8("mode", (*uint8)(&t.Mode)),
		fieldBool("paused", &t.Paused),
		fieldKey("usdc_mint", &t.StakeMint),
		fieldKey("gov_mint", &t.GovMint),
		fieldKey("global_state", &t.GlobalState),
		fieldKey("control_vault_gov", &t.GovVault),
		fieldU64("min_bet", &t.MinStake),
		fieldU64("max_bet", &t.MaxStake),
		fieldU64("locked_liability", &t.LockedLiability),
		fieldU32("active_bets", &t.ActiveBets),
		fieldU64("bet_seq", &t.BetSeq),
	}
	if revision >= TableRevisionCurrent {
		fields = append(fields,
			fieldI64("withdraw_request_ts", &t.WithdrawRequestTS),
			fieldU64("withdraw_request_amount", &t.WithdrawRequestAmount),
		)
	}
	fields = append(fields,
		fieldU8("bump_table", &t.Bumps.Table),
		fieldU8("bump_control_vault_gov", &t.Bumps.GovVault),
	)
	return Layout{Account: "Table", Discriminator: TableDiscriminator, Fields: fields}
}

// DecodeTable escolhe a revisão pelo tamanho do buffer. Um buffer menor que o
// layout legado é reportado como truncado contra o layout atual.
func DecodeTable(buf []byte) (*Table, error) {
	var t Table
	rev := TableRevisionCurrent
	body := len(buf) - discriminatorSize
	if body < fixedSize(t.Layout(TableRevisionCurrent).Fields) &&
		body >= fixedSize(t.Layout(TableRevisionLegacy).Fields) {
		rev = TableRevisionLegacy
	}
	if err := t.Layout(rev).decode(buf); err != nil {
		return nil, err
	}
	t.Revision = rev
	return &t, nil
}

// MarshalBinary serializa a mesa na revisão registrada (atual quando zero)
func (t *Table) MarshalBinary() ([]byte, error) {
	rev := t.Revision
	if rev == 0 {
		rev = TableRevisionCurrent
	}
	return t.Layout(rev).encode()
}

// WagerState é o ciclo de vida da aposta
type WagerState uint8

const (
	WagerPending   WagerState = 0
	WagerSettled   WagerState = 1
	WagerReclaimed WagerState = 2
)

func (s WagerState) String() string {
	switch s {
	case WagerPending:
		return "pending"
	case WagerSettled:
		return "settled"
	case WagerReclaimed:
		return "reclaimed"
	}
	return "unknown"
}

// Wager é o registro de uma aposta (BetAccount no programa).
// O payout nunca é persistido; é sempre re-derivado pelo cliente.
type Wager struct {
	Table      solana.PublicKey
	Player     solana.PublicKey
	Stake      uint64
	Multiplier uint16
	MaxPayout  uint64
	Kind       WagerKind
	State      WagerState
	CreatedTS  int64
	Force      [32]byte
	Randomness solana.PublicKey
	Outcome    OptionU8
}

func (w *Wager) Layout() Layout {
	return Layout{
		Account:       "BetAccount",
		Discriminator: WagerDiscriminator,
		Fields: []Field{
			fieldKey("table", &w.Table),
			fieldKey("player", &w.Player),
			fieldU64("stake", &w.Stake),
			fieldU16("multiplier", &w.Multiplier),
			fieldU64("max_total_payout", &w.MaxPayout),
			fieldWagerKind("kind", &w.Kind),
			fieldU8("state", (*uint8)(&w.State)),
			fieldI64("created_ts", &w.CreatedTS),
			fieldBytes32("force", &w.Force),
			fieldKey("randomness_account", &w.Randomness),
			fieldOptionU8("result_number", &w.Outcome),
		},
	}
}

// DecodeWager decodifica a aposta. Uma tag de variante desconhecida não falha
// aqui: w.Kind.Err() sinaliza o valor suspeito.
func DecodeWager(buf []byte) (*Wager, error) {
	var w Wager
	if err := w.Layout().decode(buf); err != nil {
		return nil, err
	}
	return &w, nil
}

func (w *Wager) MarshalBinary() ([]byte, error) { return w.Layout().encode() }

// Settled indica se a aposta já tem número sorteado
func (w *Wager) Settled() bool { return w.State == WagerSettled && w.Outcome.Set }

type GlobalBumps struct {
	Global uint8
	Vault  uint8
}

// GlobalState é o pool de liquidez compartilhado por ativo de aposta
type GlobalState struct {
	StakeMint       solana.PublicKey
	Vault           solana.PublicKey
	LockedLiability uint64
	ActiveBets      uint64
	Bumps           GlobalBumps
}

func (g *GlobalState) Layout() Layout {
	return Layout{
		Account:       "GlobalState",
		Discriminator: GlobalStateDiscriminator,
		Fields: []Field{
			fieldKey("usdc_mint", &g.StakeMint),
			fieldKey("vault_usdc", &g.Vault),
			fieldU64("total_locked_liability", &g.LockedLiability),
			fieldU64("total_active_bets", &g.ActiveBets),
			fieldU8("bump_global", &g.Bumps.Global),
			fieldU8("bump_vault_usdc", &g.Bumps.Vault),
		},
	}
}

func DecodeGlobalState(buf []byte) (*GlobalState, error) {
	var g GlobalState
	if err := g.Layout().decode(buf); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *GlobalState) MarshalBinary() ([]byte, error) { return g.Layout().encode() }

// GovDeposit registra quanto token de governança um depositante travou na mesa
type GovDeposit struct {
	Table     solana.PublicKey
	Depositor solana.PublicKey
	Amount    uint64
}

func (d *GovDeposit) Layout() Layout {
	return Layout{
		Account:       "GovDeposit",
		Discriminator: GovDepositDiscriminator,
		Fields: []Field{
			fieldKey("table", &d.Table),
			fieldKey("depositor", &d.Depositor),
			fieldU64("amount", &d.Amount),
		},
	}
}

func DecodeGovDeposit(buf []byte) (*GovDeposit, error) {
	var d GovDeposit
	if err := d.Layout().decode(buf); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *GovDeposit) MarshalBinary() ([]byte, error) { return d.Layout().encode() }

// NetworkState é a configuração do colaborador de aleatoriedade.
// Só o prefixo (authority, treasury) é lido; o resto é ignorado.
type NetworkState struct {
	Authority solana.PublicKey
	Treasury  solana.PublicKey
}

func (n *NetworkState) Layout() Layout {
	return Layout{
		Account:       "NetworkState",
		Discriminator: NetworkStateDiscriminator,
		Fields: []Field{
			fieldKey("authority", &n.Authority),
			fieldKey("treasury", &n.Treasury),
		},
	}
}

func DecodeNetworkState(buf []byte) (*NetworkState, error) {
	var n NetworkState
	if err := n.Layout().decode(buf); err != nil {
		return nil, err
	}
	return &n, nil
}

func (n *NetworkState) MarshalBinary() ([]byte, error) { return n.Layout().encode() }
