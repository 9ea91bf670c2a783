package custody

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
)

// DefaultChainID is used when a wallet has no configured chain
const DefaultChainID = 1

// EnvDirectory implements domain.WalletDirectory over environment
// variables. Chain and currency come from `CUSTODY_CHAIN_<userID>_<walletID>`
// ("<chainID>" or "<chainID>:<currency>"); the address is derived from the
// vault's public key.
type EnvDirectory struct {
	vault Vault
	log   zerolog.Logger
}

// NewEnvDirectory creates a wallet directory backed by environment variables
func NewEnvDirectory(vault Vault, log zerolog.Logger) *EnvDirectory {
	return &EnvDirectory{
		vault: vault,
		log:   log.With().Str("service", "wallet_directory").Logger(),
	}
}

// ChainMetadata returns chain metadata for the given wallet. A missing
// chain entry falls back to DefaultChainID rather than failing, an address
// lookup failure is a real custody error and propagates.
func (d *EnvDirectory) ChainMetadata(ctx context.Context, userID int64, walletID string) (*domain.WalletMeta, error) {
	meta := &domain.WalletMeta{
		WalletID: walletID,
		ChainID:  DefaultChainID,
	}

	if raw := os.Getenv(fmt.Sprintf("CUSTODY_CHAIN_%d_%s", userID, walletID)); raw != "" {
		chainPart, currency, _ := strings.Cut(raw, ":")
		chainID, err := strconv.ParseInt(strings.TrimSpace(chainPart), 10, 64)
		if err != nil {
			return nil, &domain.ConfigurationError{
				Field: fmt.Sprintf("CUSTODY_CHAIN_%d_%s", userID, walletID),
				Err:   fmt.Errorf("invalid chain id %q: %w", chainPart, err),
			}
		}
		meta.ChainID = chainID
		meta.Currency = strings.TrimSpace(currency)
	}

	address, err := d.vault.GetAddress(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}
	meta.Address = address

	return meta, nil
}
