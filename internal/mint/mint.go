// Package mint decodes SPL token mint accounts, including Token-2022
// extension data relevant to rug risk.
package mint

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/sentinel-trading/sentinel/internal/solana"
)

// ErrMalformedData means the account buffer is too short or unparseable.
// Treated by callers identically to missing data.
var ErrMalformedData = errors.New("mint: malformed account data")

// ExtensionKind identifies a Token-2022 extension by its type code.
type ExtensionKind uint16

// Token-2022 extension type codes that allow the deployer to confiscate,
// freeze, tax or block transfers after launch.
const (
	ExtTransferFee       ExtensionKind = 1
	ExtNonTransferable   ExtensionKind = 9
	ExtPermanentDelegate ExtensionKind = 12
	ExtTransferHook      ExtensionKind = 14
	ExtPausable          ExtensionKind = 22
)

var extensionNames = map[ExtensionKind]string{
	ExtTransferFee:       "transfer_fee",
	ExtNonTransferable:   "non_transferable",
	ExtPermanentDelegate: "permanent_delegate",
	ExtTransferHook:      "transfer_hook",
	ExtPausable:          "pausable",
}

// String returns the canonical flag name for a known extension.
func (k ExtensionKind) String() string {
	if name, ok := extensionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("extension_%d", uint16(k))
}

// SPL mint account layout (fixed offsets).
const (
	offMintAuthOption   = 0  // u32 LE: 1 = authority present
	offMintAuthKey      = 4  // 32 bytes
	offSupply           = 36 // u64 LE
	offDecimals         = 44 // u8
	offFreezeAuthOption = 46 // u32 LE
	offFreezeAuthKey    = 50 // 32 bytes
	baseMintLen         = 82

	accountTypeOffset = 82 // Token-2022 account type discriminator
	accountTypeMint   = 1
	tlvStart          = 83
)

// Account is the decoded state of a token mint.
type Account struct {
	Mint                   solana.Pubkey   `json:"mint"`
	MintAuthority          solana.Pubkey   `json:"mint_authority,omitempty"`
	FreezeAuthority        solana.Pubkey   `json:"freeze_authority,omitempty"`
	MintAuthorityRevoked   bool            `json:"mint_authority_revoked"`
	FreezeAuthorityRevoked bool            `json:"freeze_authority_revoked"`
	Supply                 uint64          `json:"supply"`
	Decimals               uint8           `json:"decimals"`
	DangerousExtensions    []ExtensionKind `json:"dangerous_extensions,omitempty"`
	IsExtendedProgram      bool            `json:"is_extended_program"`
}

// HasDangerousExtension reports whether any disqualifying extension is set.
func (a *Account) HasDangerousExtension() bool {
	return len(a.DangerousExtensions) > 0
}

// ExtensionNames returns the flag names of detected dangerous extensions.
func (a *Account) ExtensionNames() []string {
	names := make([]string, 0, len(a.DangerousExtensions))
	for _, ext := range a.DangerousExtensions {
		names = append(names, ext.String())
	}
	return names
}

// Parse decodes a raw mint account buffer. The owner program id decides
// whether Token-2022 extension data may follow the base layout.
func Parse(mintAddr solana.Pubkey, data []byte, owner solana.Pubkey) (*Account, error) {
	if len(data) < baseMintLen {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedData, len(data), baseMintLen)
	}

	acc := &Account{
		Mint:              mintAddr,
		Supply:            binary.LittleEndian.Uint64(data[offSupply : offSupply+8]),
		Decimals:          data[offDecimals],
		IsExtendedProgram: owner == solana.Token2022ProgramID,
	}

	mintOpt := binary.LittleEndian.Uint32(data[offMintAuthOption : offMintAuthOption+4])
	acc.MintAuthorityRevoked = mintOpt == 0
	if mintOpt != 0 {
		acc.MintAuthority = solana.Pubkey(base58.Encode(data[offMintAuthKey : offMintAuthKey+32]))
	}

	freezeOpt := binary.LittleEndian.Uint32(data[offFreezeAuthOption : offFreezeAuthOption+4])
	acc.FreezeAuthorityRevoked = freezeOpt == 0
	if freezeOpt != 0 {
		acc.FreezeAuthority = solana.Pubkey(base58.Encode(data[offFreezeAuthKey : offFreezeAuthKey+32]))
	}

	if acc.IsExtendedProgram && len(data) > tlvStart && data[accountTypeOffset] == accountTypeMint {
		acc.DangerousExtensions = parseExtensions(data[tlvStart:], len(data)/4)
	}

	return acc, nil
}

// parseExtensions walks the TLV region. Unknown extension codes are
// skipped. maxIter bounds the loop so garbage length fields cannot spin.
func parseExtensions(tlv []byte, maxIter int) []ExtensionKind {
	var found []ExtensionKind
	pos := 0
	for i := 0; i < maxIter; i++ {
		if pos+4 > len(tlv) {
			break
		}
		extType := ExtensionKind(binary.LittleEndian.Uint16(tlv[pos : pos+2]))
		extLen := int(binary.LittleEndian.Uint16(tlv[pos+2 : pos+4]))
		if extType == 0 && extLen == 0 {
			break
		}
		if _, dangerous := extensionNames[extType]; dangerous {
			found = append(found, extType)
		}
		pos += 4 + extLen
	}
	return found
}
