package mint

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// buildMint constructs a raw mint buffer with the given authority options.
func buildMint(mintOpt, freezeOpt uint32, supply uint64, decimals uint8) []byte {
	buf := make([]byte, 82)
	binary.LittleEndian.PutUint32(buf[0:4], mintOpt)
	if mintOpt != 0 {
		for i := 4; i < 36; i++ {
			buf[i] = 0xAB
		}
	}
	binary.LittleEndian.PutUint64(buf[36:44], supply)
	buf[44] = decimals
	buf[45] = 1 // initialized
	binary.LittleEndian.PutUint32(buf[46:50], freezeOpt)
	if freezeOpt != 0 {
		for i := 50; i < 82; i++ {
			buf[i] = 0xCD
		}
	}
	return buf
}

// appendTLV extends a base buffer into Token-2022 form with extensions.
func appendTLV(base []byte, entries ...[3]int) []byte {
	buf := append(append([]byte{}, base...), accountTypeMint) // byte 82
	for _, e := range entries {
		extType, extLen := e[0], e[1]
		entry := make([]byte, 4+extLen)
		binary.LittleEndian.PutUint16(entry[0:2], uint16(extType))
		binary.LittleEndian.PutUint16(entry[2:4], uint16(extLen))
		buf = append(buf, entry...)
	}
	return buf
}

func TestParse_RevokedAuthorities(t *testing.T) {
	buf := buildMint(0, 0, 1_000_000_000, 9)

	acc, err := Parse("mint1", buf, solana.TokenProgramID)
	require.NoError(t, err)

	assert.True(t, acc.MintAuthorityRevoked)
	assert.True(t, acc.FreezeAuthorityRevoked)
	assert.Empty(t, acc.MintAuthority)
	assert.Empty(t, acc.FreezeAuthority)
	assert.Equal(t, uint64(1_000_000_000), acc.Supply)
	assert.Equal(t, uint8(9), acc.Decimals)
	assert.False(t, acc.IsExtendedProgram)
	assert.False(t, acc.HasDangerousExtension())
}

func TestParse_ActiveAuthorities(t *testing.T) {
	buf := buildMint(1, 1, 500, 6)

	acc, err := Parse("mint1", buf, solana.TokenProgramID)
	require.NoError(t, err)

	assert.False(t, acc.MintAuthorityRevoked)
	assert.False(t, acc.FreezeAuthorityRevoked)
	assert.NotEmpty(t, acc.MintAuthority)
	assert.NotEmpty(t, acc.FreezeAuthority)
}

func TestParse_ShortBuffer(t *testing.T) {
	_, err := Parse("mint1", make([]byte, 40), solana.TokenProgramID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedData))

	_, err = Parse("mint1", nil, solana.TokenProgramID)
	assert.True(t, errors.Is(err, ErrMalformedData))
}

func TestParse_Token2022Extensions(t *testing.T) {
	base := buildMint(0, 0, 1000, 9)
	buf := appendTLV(base,
		[3]int{3, 8, 0},  // unknown/benign extension, skipped
		[3]int{12, 32, 0}, // permanent delegate
		[3]int{1, 16, 0},  // transfer fee
	)
	// Payload bytes for the declared lengths.
	buf = append(buf, make([]byte, 64)...)

	acc, err := Parse("mint1", buf, solana.Token2022ProgramID)
	require.NoError(t, err)

	assert.True(t, acc.IsExtendedProgram)
	assert.True(t, acc.HasDangerousExtension())
	assert.Contains(t, acc.DangerousExtensions, ExtPermanentDelegate)
	assert.Contains(t, acc.DangerousExtensions, ExtTransferFee)
	assert.NotContains(t, acc.DangerousExtensions, ExtensionKind(3))
	assert.ElementsMatch(t, []string{"permanent_delegate", "transfer_fee"}, acc.ExtensionNames())
}

func TestParse_Token2022NoTLVForLegacyProgram(t *testing.T) {
	base := buildMint(0, 0, 1000, 9)
	buf := appendTLV(base, [3]int{12, 0, 0})

	// Same bytes but owned by the legacy token program: no TLV walk.
	acc, err := Parse("mint1", buf, solana.TokenProgramID)
	require.NoError(t, err)
	assert.False(t, acc.IsExtendedProgram)
	assert.False(t, acc.HasDangerousExtension())
}

func TestParse_TLVSentinelStops(t *testing.T) {
	base := buildMint(0, 0, 1000, 9)
	buf := appendTLV(base,
		[3]int{0, 0, 0},  // sentinel
		[3]int{12, 0, 0}, // after sentinel, must be ignored
	)

	acc, err := Parse("mint1", buf, solana.Token2022ProgramID)
	require.NoError(t, err)
	assert.False(t, acc.HasDangerousExtension())
}

func TestParse_TruncatedTLVTerminates(t *testing.T) {
	base := buildMint(0, 0, 1000, 9)
	buf := append(append([]byte{}, base...), accountTypeMint)

	// Garbage TLV: length fields point past the buffer end, entry headers
	// cut off mid-way. Parse must terminate and not panic.
	buf = append(buf, 0x0C, 0x00, 0xFF, 0xFF) // type 12, len 65535
	buf = append(buf, 0x01, 0x00, 0x03)       // truncated header

	acc, err := Parse("mint1", buf, solana.Token2022ProgramID)
	require.NoError(t, err)
	assert.Contains(t, acc.DangerousExtensions, ExtPermanentDelegate)
}

func TestParse_GarbageTLVBounded(t *testing.T) {
	base := buildMint(0, 0, 1000, 9)
	buf := append(append([]byte{}, base...), accountTypeMint)
	// Many zero-length non-sentinel entries: loop must stop within
	// len(buf)/4 iterations even though pos never reaches the end fast.
	for i := 0; i < 500; i++ {
		buf = append(buf, 0x63, 0x00, 0x00, 0x00) // type 99, len 0
	}

	acc, err := Parse("mint1", buf, solana.Token2022ProgramID)
	require.NoError(t, err)
	assert.False(t, acc.HasDangerousExtension())
}
