package evm

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/auteng/x402-go"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// WithKeystore loads the private key from an encrypted V3 keystore file.
func WithKeystore(keystorePath, password string) SignerOption {
	return func(s *Signer) error {
		data, err := os.ReadFile(keystorePath)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
		}
		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
		}
		s.privateKey = key.PrivateKey
		return nil
	}
}

// WithMnemonic derives the private key from a BIP39 mnemonic along
// m/44'/60'/0'/0/{accountIndex}.
func WithMnemonic(mnemonic string, accountIndex uint32) SignerOption {
	return func(s *Signer) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return x402.ErrInvalidMnemonic
		}

		// DefaultRootDerivationPath is m/44'/60'/0'/0; the index is the last level.
		path := make(accounts.DerivationPath, len(accounts.DefaultRootDerivationPath), len(accounts.DefaultRootDerivationPath)+1)
		copy(path, accounts.DefaultRootDerivationPath)
		path = append(path, accountIndex)

		privateKey, err := deriveKey(bip39.NewSeed(mnemonic, ""), path)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidMnemonic, err)
		}
		s.privateKey = privateKey
		return nil
	}
}

// deriveKey walks a BIP32 derivation path from the master key of seed.
func deriveKey(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	for _, index := range path {
		if key, err = key.NewChildKey(index); err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
	}
	return crypto.ToECDSA(key.Key)
}
