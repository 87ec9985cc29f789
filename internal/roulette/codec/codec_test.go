package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) solana.PublicKey {
	var k solana.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

func sampleTable() *Table {
	return &Table{
		Seed:                  42,
		Creator:               key(1),
		Operator:              key(2),
		Mode:                  ModePublic,
		Paused:                true,
		StakeMint:             key(3),
		GovMint:               key(4),
		GlobalState:           key(5),
		GovVault:              key(6),
		MinStake:              1_000,
		MaxStake:              5_000_000,
		LockedLiability:       360_000,
		ActiveBets:            3,
		BetSeq:                17,
		WithdrawRequestTS:     1_700_000_000,
		WithdrawRequestAmount: 250,
		Bumps:                 TableBumps{Table: 254, GovVault: 253},
	}
}

func TestAccountDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("account:Table"))
	assert.Equal(t, sum[:8], TableDiscriminator[:])

	sum = sha256.Sum256([]byte("global:place_bet"))
	assert.Equal(t, sum[:8], IxPlaceBet.Discriminator[:])
}

func TestTableRoundTrip(t *testing.T) {
	in := sampleTable()
	buf, err := in.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, 8+256)

	out, err := DecodeTable(buf)
	require.NoError(t, err)
	in.Revision = TableRevisionCurrent
	assert.Equal(t, in, out)
}

func TestTableLegacyRevision(t *testing.T) {
	in := sampleTable()
	in.Revision = TableRevisionLegacy
	buf, err := in.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, buf, 8+240)

	out, err := DecodeTable(buf)
	require.NoError(t, err)
	assert.Equal(t, TableRevisionLegacy, out.Revision)
	assert.Equal(t, uint64(17), out.BetSeq)
	assert.Zero(t, out.WithdrawRequestTS)
	assert.Equal(t, uint8(254), out.Bumps.Table)
}

func TestTableOffsets(t *testing.T) {
	buf, err := sampleTable().MarshalBinary()
	require.NoError(t, err)

	var tbl Table
	offsets, err := tbl.Layout(TableRevisionCurrent).Offsets(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, offsets["seed"])
	assert.Equal(t, 16, offsets["creator"])
	assert.Equal(t, 80, offsets["mode"])
	assert.Equal(t, 238, offsets["bet_seq"])
	assert.Equal(t, 254, offsets["withdraw_request_amount"])

	seq := binary.LittleEndian.Uint64(buf[offsets["bet_seq"]:])
	assert.Equal(t, uint64(17), seq)
}

func TestTableDecodeErrors(t *testing.T) {
	buf, err := sampleTable().MarshalBinary()
	require.NoError(t, err)

	t.Run("wrong discriminator", func(t *testing.T) {
		g := &GlobalState{StakeMint: key(9)}
		other, err := g.MarshalBinary()
		require.NoError(t, err)
		_, err = DecodeTable(other)
		assert.ErrorIs(t, err, ErrLayoutMismatch)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeTable(buf[:100])
		assert.ErrorIs(t, err, ErrTruncatedBuffer)
	})

	t.Run("shorter than discriminator", func(t *testing.T) {
		_, err := DecodeTable(buf[:5])
		assert.ErrorIs(t, err, ErrTruncatedBuffer)
	})
}

func TestWagerRoundTrip(t *testing.T) {
	in := &Wager{
		Table:      key(1),
		Player:     key(2),
		Stake:      100,
		Multiplier: 35,
		MaxPayout:  3_600,
		Kind:       Straight(17),
		State:      WagerSettled,
		CreatedTS:  1_700_000_123,
		Force:      [32]byte{7, 7, 7},
		Randomness: key(3),
		Outcome:    OptionU8{Value: 17, Set: true},
	}
	buf, err := in.MarshalBinary()
	require.NoError(t, err)

	out, err := DecodeWager(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.Settled())
	assert.NoError(t, out.Kind.Err())
}

func TestWagerUnknownKindTag(t *testing.T) {
	in := &Wager{Table: key(1), Player: key(2), Stake: 10, Multiplier: 1, Kind: Red()}
	buf, err := in.MarshalBinary()
	require.NoError(t, err)

	offsets, err := in.Layout().Offsets(buf)
	require.NoError(t, err)
	buf[offsets["kind"]] = 99

	out, err := DecodeWager(buf)
	require.NoError(t, err)
	assert.ErrorIs(t, out.Kind.Err(), ErrUnknownVariantTag)
	assert.Equal(t, WagerPending, out.State)
}

func TestWagerTruncatedNeverPartial(t *testing.T) {
	in := &Wager{Table: key(1), Player: key(2), Stake: 10, Kind: Corner(1, 1)}
	buf, err := in.MarshalBinary()
	require.NoError(t, err)

	out, err := DecodeWager(buf[:len(buf)-3])
	assert.ErrorIs(t, err, ErrTruncatedBuffer)
	assert.Nil(t, out)
}

func TestWagerInvalidOptionTag(t *testing.T) {
	in := &Wager{Table: key(1), Player: key(2), Kind: Even()}
	buf, err := in.MarshalBinary()
	require.NoError(t, err)
	buf[len(buf)-1] = 2

	_, err = DecodeWager(buf)
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestDecodeWagerKind(t *testing.T) {
	cases := []struct {
		name     string
		buf      []byte
		want     WagerKind
		consumed int
		err      error
	}{
		{name: "corner", buf: []byte{3, 1, 1, 0xff}, want: Corner(1, 1), consumed: 3},
		{name: "red", buf: []byte{5}, want: Red(), consumed: 1},
		{name: "column", buf: []byte{12, 2}, want: Column(2), consumed: 2},
		{name: "split truncated", buf: []byte{1, 4}, err: ErrTruncatedBuffer},
		{name: "empty", buf: nil, err: ErrTruncatedBuffer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k, n, err := DecodeWagerKind(tc.buf)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, k)
			assert.Equal(t, tc.consumed, n)
			assert.Equal(t, tc.buf[:n], EncodeWagerKind(k))
		})
	}
}

func TestDecodeWagerKindUnknownTagFallback(t *testing.T) {
	k, n, err := DecodeWagerKind([]byte{200, 9, 9})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, k.Err(), ErrUnknownVariantTag)
}

func TestParseWagerKind(t *testing.T) {
	k, err := ParseWagerKind("six_line", []uint8{4})
	require.NoError(t, err)
	assert.Equal(t, SixLine(4), k)
	assert.Equal(t, "six_line(4)", k.String())

	_, err = ParseWagerKind("split", []uint8{1})
	assert.Error(t, err)

	_, err = ParseWagerKind("basket", nil)
	assert.ErrorIs(t, err, ErrUnknownVariantTag)
}

func TestGlobalStateAndGovDepositRoundTrip(t *testing.T) {
	g := &GlobalState{StakeMint: key(1), Vault: key(2), LockedLiability: 99, ActiveBets: 4, Bumps: GlobalBumps{Global: 250, Vault: 251}}
	buf, err := g.MarshalBinary()
	require.NoError(t, err)
	gotG, err := DecodeGlobalState(buf)
	require.NoError(t, err)
	assert.Equal(t, g, gotG)

	d := &GovDeposit{Table: key(1), Depositor: key(2), Amount: 51}
	buf, err = d.MarshalBinary()
	require.NoError(t, err)
	gotD, err := DecodeGovDeposit(buf)
	require.NoError(t, err)
	assert.Equal(t, d, gotD)
}

func TestNetworkStatePrefix(t *testing.T) {
	n := &NetworkState{Authority: key(1), Treasury: key(2)}
	buf, err := n.MarshalBinary()
	require.NoError(t, err)
	// campos seguintes da configuração são ignorados
	buf = append(buf, make([]byte, 64)...)

	got, err := DecodeNetworkState(buf)
	require.NoError(t, err)
	assert.Equal(t, key(2), got.Treasury)
}

func TestRandomnessV2(t *testing.T) {
	t.Run("fulfilled", func(t *testing.T) {
		in := &Randomness{Version: 2, Variant: RandomnessFulfilled, Client: key(1), Seed: [32]byte{1}, Randomness: [64]byte{5, 4, 3}}
		buf, err := in.MarshalBinary()
		require.NoError(t, err)
		assert.Len(t, buf, 8+1+32+32+64)

		out, err := DecodeRandomness(buf)
		require.NoError(t, err)
		assert.True(t, out.Fulfilled())
		assert.Equal(t, in.Randomness, out.Randomness)
		assert.Equal(t, in.Seed, out.Seed)
	})

	t.Run("pending with responses", func(t *testing.T) {
		in := &Randomness{Version: 2, Client: key(1), Seed: [32]byte{2},
			Responses: []Response{{Authority: key(8), Randomness: [64]byte{1}}}}
		buf, err := in.MarshalBinary()
		require.NoError(t, err)

		out, err := DecodeRandomness(buf)
		require.NoError(t, err)
		assert.False(t, out.Fulfilled())
		require.Len(t, out.Responses, 1)
		assert.Equal(t, key(8), out.Responses[0].Authority)
	})

	t.Run("unknown variant", func(t *testing.T) {
		buf := append(RandomnessV2Discriminator[:], 7)
		_, err := DecodeRandomness(buf)
		assert.ErrorIs(t, err, ErrUnknownVariantTag)
	})

	t.Run("response count beyond buffer", func(t *testing.T) {
		in := &Randomness{Version: 2, Client: key(1)}
		buf, err := in.MarshalBinary()
		require.NoError(t, err)
		binary.LittleEndian.PutUint32(buf[len(buf)-4:], 3)
		_, err = DecodeRandomness(buf)
		assert.ErrorIs(t, err, ErrTruncatedBuffer)
	})
}

func TestRandomnessV1(t *testing.T) {
	pending := &Randomness{Version: 1, Seed: [32]byte{3}, Responses: []Response{}}
	buf, err := pending.MarshalBinary()
	require.NoError(t, err)
	out, err := DecodeRandomness(buf)
	require.NoError(t, err)
	assert.False(t, out.Fulfilled())

	done := &Randomness{Version: 1, Seed: [32]byte{3}, Randomness: [64]byte{9}}
	buf, err = done.MarshalBinary()
	require.NoError(t, err)
	out, err = DecodeRandomness(buf)
	require.NoError(t, err)
	assert.True(t, out.Fulfilled())
	assert.Equal(t, 1, out.Version)
}

func TestDecodeRandomnessWrongAccount(t *testing.T) {
	buf, err := sampleTable().MarshalBinary()
	require.NoError(t, err)
	_, err = DecodeRandomness(buf)
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestPlaceBetEncoding(t *testing.T) {
	args := PlaceBetArgs{Kind: Split(1, 2), Stake: 1_000_000, Force: [32]byte{0xaa}}
	data, err := EncodePlaceBet(args)
	require.NoError(t, err)

	require.Len(t, data, 8+1+2+8+32)
	assert.Equal(t, IxPlaceBet.Discriminator[:], data[:8])
	assert.Equal(t, []byte{1, 1, 2}, data[8:11])
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[11:19]))
	assert.Equal(t, byte(0xaa), data[19])

	got, err := DecodePlaceBet(data)
	require.NoError(t, err)
	assert.Equal(t, args, got)

	ix, ok := LookupInstruction(data)
	require.True(t, ok)
	assert.Equal(t, "place_bet", ix.Name)
}

func TestPlaceBetEncodingRejectsUnknownKind(t *testing.T) {
	data, err := EncodePlaceBet(PlaceBetArgs{Kind: WagerKind{Tag: KindTag(200)}, Stake: 1})
	assert.ErrorIs(t, err, ErrUnknownVariantTag)
	assert.Nil(t, data)
}

func TestInstructionEncodeSurfacesFieldError(t *testing.T) {
	bad := Field{Name: "amount", Kind: FieldU64, ptr: new(string)}

	data, err := IxDepositGov.encode(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deposit_gov")
	assert.Contains(t, err.Error(), `field "amount"`)
	assert.Nil(t, data)

	assert.Panics(t, func() { IxDepositGov.mustEncode(bad) })
}

func TestCreateTableEncoding(t *testing.T) {
	args := CreateTableArgs{Seed: 7, Mode: ModePrivate, MinStake: 10, MaxStake: 20}
	data := EncodeCreateTable(args)
	require.Len(t, data, 8+8+1+8+8)

	got, err := DecodeCreateTable(data)
	require.NoError(t, err)
	assert.Equal(t, args, got)
}

func TestAmountAndModeEncoding(t *testing.T) {
	data := EncodeAmount(IxDepositLiquidity, 500)
	amount, err := DecodeAmount(IxDepositLiquidity, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), amount)

	_, err = DecodeAmount(IxExecuteWithdraw, data)
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	_, err = DecodeAmount(IxDepositLiquidity, append(data, 0))
	assert.ErrorIs(t, err, ErrLayoutMismatch)

	mode, err := DecodeSetMode(EncodeSetMode(ModePublic))
	require.NoError(t, err)
	assert.Equal(t, ModePublic, mode)

	assert.NoError(t, IxPause.Decode(IxPause.Encode()))
	assert.Len(t, IxResolveBet.Encode(), 8)
}

func TestInstructionDiscriminatorsUnique(t *testing.T) {
	seen := map[[8]byte]string{}
	for _, ix := range instructions {
		prev, dup := seen[ix.Discriminator]
		assert.False(t, dup, "%s collides with %s", ix.Name, prev)
		seen[ix.Discriminator] = ix.Name
	}
	_, ok := LookupInstruction([]byte{1, 2, 3})
	assert.False(t, ok)
}
