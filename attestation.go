package vetflow

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/kyc"
	"github.com/blnkfinance/vetflow/model"
	"github.com/blnkfinance/vetflow/wallet"
)

var ErrNotVerified = errors.New("document has not passed verification")

func verificationError(err error) error {
	switch {
	case errors.Is(err, kyc.ErrProviderFailure):
		return apierror.Wrap(apierror.ErrExternalCall, "document verification failed, try again", err)
	case errors.Is(err, kyc.ErrCheckNotFound), errors.Is(err, database.ErrNotFound):
		return apierror.Wrap(apierror.ErrNotFound, err.Error(), err)
	case errors.Is(err, kyc.ErrNoDocument), errors.Is(err, kyc.ErrDocumentsAbsent),
		errors.Is(err, kyc.ErrProviderMissing), errors.Is(err, model.ErrIndexOutOfRange):
		return apierror.Wrap(apierror.ErrValidation, err.Error(), err)
	}
	return err
}

// VerifyDocument sends a form document to a verification provider. A provider failure
// fails this service's check only; the returned check records it.
func (v *Vetflow) VerifyDocument(ctx context.Context, sessionID string, serviceID model.ServiceType, index int, provider string) (*model.DocumentCheck, error) {
	s, err := v.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := v.chosenService(ctx, s, serviceID); err != nil {
		return nil, err
	}
	if _, err := v.datasource.GetForm(ctx, sessionID, serviceID); errors.Is(err, database.ErrNotFound) {
		return nil, verificationError(kyc.ErrNoDocument)
	}
	check, err := v.verifier.VerifyDocument(ctx, sessionID, serviceID, index, provider)
	if err != nil {
		return check, verificationError(err)
	}
	return check, nil
}

// DocumentChecks lists the verification checks of a session by service.
func (v *Vetflow) DocumentChecks(ctx context.Context, sessionID string) (map[model.ServiceType]*model.DocumentCheck, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	return v.verifier.GetChecks(ctx, sessionID)
}

func (v *Vetflow) onCheckUpdated(check *model.DocumentCheck) {
	logrus.WithFields(logrus.Fields{
		"session_id": check.SessionID,
		"service_id": check.ServiceID,
		"status":     check.Status,
	}).Info("document check updated")
	if err := v.SendWebhook(NewWebhook{Event: "document_check.updated", Payload: check}); err != nil {
		logrus.WithError(err).Warn("failed to queue document check webhook")
	}
}

// verifiedDocument returns the document at index when it is the exact file a passed
// check was issued for.
func (v *Vetflow) verifiedDocument(ctx context.Context, sessionID string, serviceID model.ServiceType, index int) (*model.DocumentCheck, *model.Document, error) {
	check, err := v.verifier.GetCheck(ctx, sessionID, serviceID)
	if err != nil {
		return nil, nil, verificationError(err)
	}
	if check.Status != model.CheckStatusPassed {
		return nil, nil, apierror.Wrap(apierror.ErrValidation, "only verified documents can be attested", ErrNotVerified)
	}
	doc, err := v.GetDocument(ctx, sessionID, serviceID, index)
	if err != nil {
		return nil, nil, err
	}
	if check.DocumentIndex != index || check.DocumentSHA256 == "" || check.DocumentSHA256 != model.DocumentDigest(doc.Data) {
		return nil, nil, apierror.Wrap(apierror.ErrValidation, "this document was not the one verified", ErrNotVerified)
	}
	return check, doc, nil
}

// AttestDocument signs the keccak256 hash of a verified document with the wallet and
// stores the attestation on the document's check. Wallet problems fail this call only.
func (v *Vetflow) AttestDocument(ctx context.Context, sessionID string, serviceID model.ServiceType, index int) (*model.Attestation, error) {
	ctx, span := otel.Tracer("Vetflow").Start(ctx, "Attest document")
	defer span.End()

	if v.wallet == nil {
		return nil, apierror.Wrap(apierror.ErrBadRequest, "no wallet is connected", wallet.ErrNoWallet)
	}
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	check, doc, err := v.verifiedDocument(ctx, sessionID, serviceID, index)
	if err != nil {
		return nil, err
	}

	addr, err := v.wallet.Address(ctx)
	if err != nil {
		return nil, apierror.Wrap(apierror.ErrBadRequest, "wallet is unavailable", err)
	}
	chainID, err := v.wallet.ChainID(ctx)
	if err != nil {
		return nil, apierror.Wrap(apierror.ErrBadRequest, "wallet is unavailable", err)
	}

	hash := crypto.Keccak256Hash(doc.Data)
	sig, err := v.wallet.SignHash(ctx, hash)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.Wrap(apierror.ErrExternalCall, "wallet could not sign the document", err)
	}
	if err := wallet.VerifySignature(hash, sig, addr); err != nil {
		span.RecordError(err)
		return nil, apierror.Wrap(apierror.ErrExternalCall, "wallet signature did not verify", err)
	}

	attestation := &model.Attestation{
		ServiceID:    serviceID,
		DocumentHash: hash.Hex(),
		Signature:    hexutil.Encode(sig),
		Address:      addr.Hex(),
		ChainID:      chainID,
		CreatedAt:    v.now(),
	}

	unlock, err := v.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Signing happens outside the lock; the stored check is reread so that a
	// re-verification or new upload in the meantime is not overwritten.
	current, currentDoc, err := v.verifiedDocument(ctx, sessionID, serviceID, index)
	if err != nil {
		return nil, err
	}
	if current.CheckID != check.CheckID || currentDoc.SHA256 != doc.SHA256 {
		return nil, apierror.Wrap(apierror.ErrConflict, "the document changed while it was being signed", ErrNotVerified)
	}
	if current.Result == nil {
		current.Result = map[string]interface{}{}
	}
	current.Result["attestation"] = attestation
	current.UpdatedAt = v.now()
	if err := v.datasource.SaveDocumentCheck(ctx, current); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"service_id": serviceID,
		"address":    attestation.Address,
	}).Info("document attested")
	return attestation, nil
}
