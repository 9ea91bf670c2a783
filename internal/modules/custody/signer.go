package custody

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
)

// DryRunSignaturePrefix marks placeholder signatures produced without any
// vault access
const DryRunSignaturePrefix = "dryrun_sig_"

// Signer is the signing boundary. It consumes a Vault to produce signed
// transactions and detached message signatures. Secrets live only for the
// duration of a single call.
type Signer struct {
	vault Vault
	log   zerolog.Logger
}

// NewSigner creates the signing boundary over a vault
func NewSigner(vault Vault, log zerolog.Logger) *Signer {
	return &Signer{
		vault: vault,
		log:   log.With().Str("service", "signer").Logger(),
	}
}

// signedEnvelope is the opaque blob handed to the broadcaster
type signedEnvelope struct {
	Payload   *domain.TxPayload `json:"payload"`
	Signature string            `json:"signature"`
	PublicKey string            `json:"public_key,omitempty"`
}

// SignTransaction signs a transaction payload. With dryRun the result
// carries a deterministic placeholder signature and the vault is never
// touched. Failures are typed, never a partial signature.
func (s *Signer) SignTransaction(ctx context.Context, userID int64, walletID string, payload *domain.TxPayload, dryRun bool) ([]byte, error) {
	if payload == nil {
		return nil, &domain.CustodyError{Op: "sign_transaction", Err: errors.New("nil transaction payload")}
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.CustodyError{Op: "sign_transaction", Err: fmt.Errorf("malformed payload: %w", err)}
	}
	digest := sha256.Sum256(canonical)

	if dryRun {
		envelope := signedEnvelope{
			Payload:   payload,
			Signature: DryRunSignaturePrefix + hex.EncodeToString(digest[:]),
		}
		blob, err := json.Marshal(envelope)
		if err != nil {
			return nil, &domain.CustodyError{Op: "sign_transaction", Err: err}
		}
		s.log.Debug().Int64("user_id", userID).Str("wallet_id", walletID).Msg("Produced dry-run signature")
		return blob, nil
	}

	signature, pub, err := s.signDigest(ctx, userID, walletID, digest[:])
	if err != nil {
		return nil, err
	}

	envelope := signedEnvelope{
		Payload:   payload,
		Signature: hex.EncodeToString(signature),
		PublicKey: hex.EncodeToString(pub),
	}
	blob, err := json.Marshal(envelope)
	if err != nil {
		return nil, &domain.CustodyError{Op: "sign_transaction", Err: err}
	}
	return blob, nil
}

// SignMessage produces a detached signature over an arbitrary message,
// following the same dry-run contract as SignTransaction
func (s *Signer) SignMessage(ctx context.Context, userID int64, walletID string, message []byte, dryRun bool) (string, error) {
	if len(message) == 0 {
		return "", &domain.CustodyError{Op: "sign_message", Err: errors.New("empty message")}
	}

	digest := sha256.Sum256(message)
	if dryRun {
		return DryRunSignaturePrefix + hex.EncodeToString(digest[:]), nil
	}

	signature, _, err := s.signDigest(ctx, userID, walletID, digest[:])
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(signature), nil
}

// signDigest fetches the seed, signs and zeroes all key material before
// returning. The seed never escapes this frame.
func (s *Signer) signDigest(ctx context.Context, userID int64, walletID string, digest []byte) ([]byte, ed25519.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, &domain.CustodyError{Op: "sign", Err: err}
	}

	seed, err := s.vault.GetPrivateKey(ctx, userID, walletID)
	if err != nil {
		var custodyErr *domain.CustodyError
		if errors.As(err, &custodyErr) {
			return nil, nil, err
		}
		return nil, nil, &domain.CustodyError{Op: "sign", Err: err}
	}
	defer zero(seed)

	if len(seed) != SeedSize {
		return nil, nil, &domain.CustodyError{Op: "sign", Err: fmt.Errorf("seed has length %d, want %d", len(seed), SeedSize)}
	}

	key := ed25519.NewKeyFromSeed(seed)
	defer zero(key)

	signature := ed25519.Sign(key, digest)
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, key.Public().(ed25519.PublicKey))
	return signature, pub, nil
}
