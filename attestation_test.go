package vetflow

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/kyc"
	"github.com/blnkfinance/vetflow/kyc/adapters"
	"github.com/blnkfinance/vetflow/model"
	"github.com/blnkfinance/vetflow/wallet"
)

func TestVerifyDocument(t *testing.T) {
	v, _ := newTestVetflow(t)
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity)

	_, err := v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	assertCode(t, err, apierror.ErrValidation)
	assert.ErrorIs(t, err, kyc.ErrNoDocument)

	fillIdentity(t, v, id)
	check, err := v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusPassed, check.Status)

	checks, err := v.DocumentChecks(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, checks, model.ServiceIdentity)
}

func TestVerifyDocument_ProviderFailureIsRetryable(t *testing.T) {
	ds := database.NewWithStore(database.NewMemoryStore())
	verifier := kyc.NewVerifier(ds)
	verifier.RegisterProvider(&adapters.MockProvider{ReturnError: true})

	v, _ := newTestVetflowOn(t, ds, WithVerifier(verifier))
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity, model.ServiceAddress)
	fillIdentity(t, v, id)

	check, err := v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	assertCode(t, err, apierror.ErrExternalCall)
	require.NotNil(t, check)
	assert.Equal(t, model.CheckStatusFailed, check.Status)

	// The failed check does not block the other forms.
	fillAddress(t, v, id)
	_, err = v.MarkFormComplete(ctx, id, model.ServiceAddress)
	require.NoError(t, err)
}

func TestAttestDocument(t *testing.T) {
	kp, err := wallet.GenerateKeyProvider(11155111)
	require.NoError(t, err)
	v, _ := newTestVetflow(t, WithWallet(kp))
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity)
	fillIdentity(t, v, id)

	_, err = v.AttestDocument(ctx, id, model.ServiceIdentity, 0)
	assertCode(t, err, apierror.ErrNotFound)

	_, err = v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	require.NoError(t, err)

	attestation, err := v.AttestDocument(ctx, id, model.ServiceIdentity, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), attestation.ChainID)

	doc, err := v.GetDocument(ctx, id, model.ServiceIdentity, 0)
	require.NoError(t, err)
	hash := crypto.Keccak256Hash(doc.Data)
	assert.Equal(t, hash.Hex(), attestation.DocumentHash)

	sig, err := hexutil.Decode(attestation.Signature)
	require.NoError(t, err)
	require.NoError(t, wallet.VerifySignature(hash, sig, common.HexToAddress(attestation.Address)))

	checks, err := v.DocumentChecks(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, checks[model.ServiceIdentity].Result, "attestation")
}

func TestAttestDocument_RequiresPassedCheck(t *testing.T) {
	kp, err := wallet.GenerateKeyProvider(1)
	require.NoError(t, err)

	ds := database.NewWithStore(database.NewMemoryStore())
	verifier := kyc.NewVerifier(ds)
	verifier.RegisterProvider(&adapters.MockProvider{Async: true})

	v, _ := newTestVetflowOn(t, ds, WithWallet(kp), WithVerifier(verifier))
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity)
	fillIdentity(t, v, id)

	check, err := v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	require.NoError(t, err)
	assert.Equal(t, model.CheckStatusSubmitted, check.Status)

	_, err = v.AttestDocument(ctx, id, model.ServiceIdentity, 0)
	assertCode(t, err, apierror.ErrValidation)
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestAttestDocument_OnlyTheVerifiedFile(t *testing.T) {
	kp, err := wallet.GenerateKeyProvider(1)
	require.NoError(t, err)
	v, _ := newTestVetflow(t, WithWallet(kp))
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity)
	fillIdentity(t, v, id)

	check, err := v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 0, check.DocumentIndex)
	doc, err := v.GetDocument(ctx, id, model.ServiceIdentity, 0)
	require.NoError(t, err)
	assert.Equal(t, doc.SHA256, check.DocumentSHA256)

	_, err = v.AttachDocument(ctx, id, model.ServiceIdentity, 0, "forged.pdf", "application/pdf", []byte("%PDF-1.7 forged"))
	require.NoError(t, err)

	_, err = v.AttestDocument(ctx, id, model.ServiceIdentity, 0)
	assertCode(t, err, apierror.ErrValidation)
	assert.ErrorIs(t, err, ErrNotVerified)

	// Verifying the new file makes it attestable again.
	_, err = v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	require.NoError(t, err)
	_, err = v.AttestDocument(ctx, id, model.ServiceIdentity, 0)
	require.NoError(t, err)
}

// reverifyingWallet re-runs verification while the document is being signed.
type reverifyingWallet struct {
	*wallet.KeyProvider
	onSign func()
}

func (w *reverifyingWallet) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	w.onSign()
	return w.KeyProvider.SignHash(ctx, hash)
}

func TestAttestDocument_CheckReplacedWhileSigning(t *testing.T) {
	kp, err := wallet.GenerateKeyProvider(1)
	require.NoError(t, err)
	w := &reverifyingWallet{KeyProvider: kp}
	v, _ := newTestVetflow(t, WithWallet(w))
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity)
	fillIdentity(t, v, id)

	first, err := v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	require.NoError(t, err)

	var second *model.DocumentCheck
	w.onSign = func() {
		second, err = v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
		require.NoError(t, err)
	}

	_, err = v.AttestDocument(ctx, id, model.ServiceIdentity, 0)
	assertCode(t, err, apierror.ErrConflict)
	require.NotNil(t, second)
	assert.NotEqual(t, first.CheckID, second.CheckID)

	checks, err := v.DocumentChecks(ctx, id)
	require.NoError(t, err)
	stored := checks[model.ServiceIdentity]
	assert.Equal(t, second.CheckID, stored.CheckID)
	assert.NotContains(t, stored.Result, "attestation")
}

func TestAttestDocument_NoWallet(t *testing.T) {
	v, _ := newTestVetflow(t)

	_, err := v.AttestDocument(context.Background(), newSessionID(), model.ServiceIdentity, 0)
	assertCode(t, err, apierror.ErrBadRequest)
	assert.ErrorIs(t, err, wallet.ErrNoWallet)
}

func TestAttestDocument_DisconnectedWallet(t *testing.T) {
	kp, err := wallet.GenerateKeyProvider(1)
	require.NoError(t, err)
	v, _ := newTestVetflow(t, WithWallet(kp))
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity)
	fillIdentity(t, v, id)
	_, err = v.VerifyDocument(ctx, id, model.ServiceIdentity, 0, "")
	require.NoError(t, err)

	kp.Disconnect()
	_, err = v.AttestDocument(ctx, id, model.ServiceIdentity, 0)
	assertCode(t, err, apierror.ErrBadRequest)
	assert.ErrorIs(t, err, wallet.ErrNoWallet)
}
