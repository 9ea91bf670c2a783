// Package custody defines the key custody boundary: vault capability
// interfaces, the backend registry and the signing boundary. Raw key
// material never travels past this package into application state.
package custody

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
)

// Vault is the custody capability: resolve a wallet to an address and,
// separately, to signing key material. Implementations are swappable and
// resolved through the Registry.
type Vault interface {
	// GetPrivateKey returns the signing seed for a wallet. The caller must
	// zero the returned slice as soon as signing completes and must never
	// persist it.
	GetPrivateKey(ctx context.Context, userID int64, walletID string) ([]byte, error)

	// GetAddress returns the public address for a wallet. No secret
	// material is involved.
	GetAddress(ctx context.Context, userID int64, walletID string) (string, error)
}

// SeedSize is the expected length of a raw signing seed
const SeedSize = ed25519.SeedSize

// EnvVault is the development custody backend. Seeds are read from
// environment variables of the form CUSTODY_KEY_<user>_<wallet>,
// hex-encoded.
type EnvVault struct {
	log zerolog.Logger
}

// NewEnvVault creates the environment-backed vault
func NewEnvVault(log zerolog.Logger) *EnvVault {
	return &EnvVault{
		log: log.With().Str("service", "env_vault").Logger(),
	}
}

func envKeyName(userID int64, walletID string) string {
	return fmt.Sprintf("CUSTODY_KEY_%d_%s", userID, walletID)
}

// GetPrivateKey reads and decodes the seed for the wallet. The returned
// slice is a fresh copy owned by the caller.
func (v *EnvVault) GetPrivateKey(ctx context.Context, userID int64, walletID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.CustodyError{Op: "get_private_key", Err: err}
	}

	name := envKeyName(userID, walletID)
	encoded := os.Getenv(name)
	if encoded == "" {
		return nil, &domain.CustodyError{Op: "get_private_key", Err: fmt.Errorf("no key configured for wallet %q", walletID)}
	}

	seed, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, &domain.CustodyError{Op: "get_private_key", Err: fmt.Errorf("malformed key for wallet %q: %w", walletID, err)}
	}
	if len(seed) != SeedSize {
		zero(seed)
		return nil, &domain.CustodyError{Op: "get_private_key", Err: fmt.Errorf("key for wallet %q has length %d, want %d", walletID, len(seed), SeedSize)}
	}
	return seed, nil
}

// GetAddress derives the public address for the wallet from its seed.
// The intermediate key material is zeroed before returning.
func (v *EnvVault) GetAddress(ctx context.Context, userID int64, walletID string) (string, error) {
	seed, err := v.GetPrivateKey(ctx, userID, walletID)
	if err != nil {
		return "", err
	}
	defer zero(seed)

	key := ed25519.NewKeyFromSeed(seed)
	defer zero(key)

	pub := key.Public().(ed25519.PublicKey)
	return "0x" + hex.EncodeToString(pub), nil
}

// zero overwrites key material in place
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
