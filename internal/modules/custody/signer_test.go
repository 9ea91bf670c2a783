package custody

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/custodian/internal/domain"
)

// countingVault wraps EnvVault and counts key lookups
type countingVault struct {
	inner      Vault
	keyLookups int
	err        error
}

func (c *countingVault) GetPrivateKey(ctx context.Context, userID int64, walletID string) ([]byte, error) {
	c.keyLookups++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.GetPrivateKey(ctx, userID, walletID)
}

func (c *countingVault) GetAddress(ctx context.Context, userID int64, walletID string) (string, error) {
	return c.inner.GetAddress(ctx, userID, walletID)
}

func testPayload() *domain.TxPayload {
	return &domain.TxPayload{
		To:      "0xrecipient",
		Value:   0,
		Gas:     21000,
		ChainID: 1,
	}
}

func TestSignTransaction_DryRunSkipsVault(t *testing.T) {
	vault := &countingVault{inner: NewEnvVault(zerolog.Nop())}
	signer := NewSigner(vault, zerolog.Nop())

	blob, err := signer.SignTransaction(context.Background(), 1, "main", testPayload(), true)

	require.NoError(t, err)
	assert.Zero(t, vault.keyLookups, "dry run must never touch the vault")

	var envelope signedEnvelope
	require.NoError(t, json.Unmarshal(blob, &envelope))
	assert.True(t, strings.HasPrefix(envelope.Signature, DryRunSignaturePrefix))
	assert.Empty(t, envelope.PublicKey)

	// Deterministic for identical payloads
	again, err := signer.SignTransaction(context.Background(), 1, "main", testPayload(), true)
	require.NoError(t, err)
	assert.Equal(t, blob, again)
}

func TestSignTransaction_RealSignatureVerifies(t *testing.T) {
	t.Setenv("CUSTODY_KEY_1_main", testSeedHex)
	signer := NewSigner(NewEnvVault(zerolog.Nop()), zerolog.Nop())

	blob, err := signer.SignTransaction(context.Background(), 1, "main", testPayload(), false)
	require.NoError(t, err)

	var envelope signedEnvelope
	require.NoError(t, json.Unmarshal(blob, &envelope))
	require.NotEmpty(t, envelope.PublicKey)

	pub, err := hex.DecodeString(envelope.PublicKey)
	require.NoError(t, err)
	signature, err := hex.DecodeString(envelope.Signature)
	require.NoError(t, err)

	canonical, err := json.Marshal(envelope.Payload)
	require.NoError(t, err)
	digest := sha256Sum(canonical)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), digest, signature))
}

func TestSignTransaction_NilPayload(t *testing.T) {
	signer := NewSigner(NewEnvVault(zerolog.Nop()), zerolog.Nop())

	_, err := signer.SignTransaction(context.Background(), 1, "main", nil, false)

	var custodyErr *domain.CustodyError
	require.ErrorAs(t, err, &custodyErr)
}

func TestSignTransaction_VaultFailureSurfacesTyped(t *testing.T) {
	vault := &countingVault{inner: NewEnvVault(zerolog.Nop()), err: errors.New("vault sealed")}
	signer := NewSigner(vault, zerolog.Nop())

	_, err := signer.SignTransaction(context.Background(), 1, "main", testPayload(), false)

	require.Error(t, err)
	var custodyErr *domain.CustodyError
	require.ErrorAs(t, err, &custodyErr)
	assert.Contains(t, err.Error(), "vault sealed")
}

func TestSignMessage(t *testing.T) {
	t.Setenv("CUSTODY_KEY_1_main", testSeedHex)
	signer := NewSigner(NewEnvVault(zerolog.Nop()), zerolog.Nop())

	t.Run("dry run", func(t *testing.T) {
		sig, err := signer.SignMessage(context.Background(), 1, "main", []byte("challenge"), true)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sig, DryRunSignaturePrefix))
	})

	t.Run("real detached signature", func(t *testing.T) {
		sig, err := signer.SignMessage(context.Background(), 1, "main", []byte("challenge"), false)
		require.NoError(t, err)

		signature, err := hex.DecodeString(sig)
		require.NoError(t, err)

		seed, _ := hex.DecodeString(testSeedHex)
		pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
		assert.True(t, ed25519.Verify(pub, sha256Sum([]byte("challenge")), signature))
	})

	t.Run("empty message", func(t *testing.T) {
		_, err := signer.SignMessage(context.Background(), 1, "main", nil, false)
		var custodyErr *domain.CustodyError
		require.ErrorAs(t, err, &custodyErr)
	})
}

func sha256Sum(data []byte) []byte {
	digest := sha256.Sum256(data)
	return digest[:]
}
