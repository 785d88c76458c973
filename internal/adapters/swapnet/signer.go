package swapnet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/swapmaker/swapmaker/internal/domain"
)

// Signer implements ports.OrderSigner with a local wallet key. Orders are
// hashed with the venue's packed encoding and signed with the Ethereum
// personal-message prefix, so the signature recovers to the maker wallet.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("swapnet.NewSigner: parse key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the maker wallet address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder hashes the order fields and signs the digest.
func (s *Signer) SignOrder(_ context.Context, fields domain.OrderFields) (domain.SignedOrder, error) {
	digest := orderDigest(fields)

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("swapnet.SignOrder: %w", err)
	}

	return domain.SignedOrder{
		OrderFields: fields,
		SigV:        sig[64] + 27,
		SigR:        hexutil.Encode(sig[:32]),
		SigS:        hexutil.Encode(sig[32:64]),
	}, nil
}

// orderDigest is keccak256 over the packed order fields, wrapped in the
// standard signed-message prefix.
func orderDigest(fields domain.OrderFields) []byte {
	packed := make([]byte, 0, 176)
	packed = append(packed, fields.MakerAddress.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amountBytes(fields.MakerAmount), 32)...)
	packed = append(packed, fields.MakerToken.Bytes()...)
	packed = append(packed, fields.TakerAddress.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amountBytes(fields.TakerAmount), 32)...)
	packed = append(packed, fields.TakerToken.Bytes()...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(fields.Expiration).Bytes(), 32)...)
	packed = append(packed, crypto.Keccak256([]byte(fields.Nonce))...)

	orderHash := crypto.Keccak256(packed)
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(orderHash))
	return crypto.Keccak256(append([]byte(prefixed), orderHash...))
}

func amountBytes(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}
