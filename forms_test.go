package vetflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/model"
)

func fillIdentity(t *testing.T, v *Vetflow, id string) {
	t.Helper()
	ctx := context.Background()
	fields := map[string]string{
		model.FieldIDType:           "passport",
		model.FieldIDNumber:         "P1234567",
		model.FieldIssueDate:        "2020-01-01",
		model.FieldExpiryDate:       "2030-01-01",
		model.FieldIssuingAuthority: "Passport Office",
	}
	for field, value := range fields {
		_, err := v.UpdateField(ctx, id, model.ServiceIdentity, model.FieldPath{Field: field}, value)
		require.NoError(t, err)
	}
	_, err := v.AttachDocument(ctx, id, model.ServiceIdentity, 0, "passport.png", "", []byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
}

func fillAddress(t *testing.T, v *Vetflow, id string) {
	t.Helper()
	ctx := context.Background()
	fields := map[string]string{
		model.FieldStreet:         "1 Main Road",
		model.FieldCity:           "Pune",
		model.FieldState:          "MH",
		model.FieldZipCode:        "411001",
		model.FieldCountry:        "IN",
		model.FieldResidenceSince: "2019-05",
	}
	for field, value := range fields {
		_, err := v.UpdateField(ctx, id, model.ServiceAddress, model.FieldPath{Field: field}, value)
		require.NoError(t, err)
	}
}

func TestUpdateField_PersistsEveryMutation(t *testing.T) {
	v, _ := newTestVetflow(t)
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceCredit)

	_, err := v.UpdateField(ctx, id, model.ServiceCredit, model.FieldPath{Field: model.FieldSSN}, "123-45-6789")
	require.NoError(t, err)
	_, err = v.UpdateField(ctx, id, model.ServiceCredit, model.FieldPath{Field: model.FieldConsent}, true)
	require.NoError(t, err)

	stored, err := v.datasource.GetForm(ctx, id, model.ServiceCredit)
	require.NoError(t, err)
	credit := stored.(*model.CreditForm)
	assert.Equal(t, "123-45-6789", credit.SSN)
	assert.True(t, credit.Consent)
}

func TestUpdateField_Errors(t *testing.T) {
	v, _ := newTestVetflow(t)
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceCredit)

	_, err := v.UpdateField(ctx, id, model.ServiceCredit, model.FieldPath{Field: "favouriteColour"}, "blue")
	assertCode(t, err, apierror.ErrValidation)
	assert.ErrorIs(t, err, model.ErrUnknownField)

	_, err = v.UpdateField(ctx, id, model.ServiceCredit, model.FieldPath{Field: model.FieldConsent}, 42)
	assert.ErrorIs(t, err, model.ErrInvalidFieldValue)

	_, err = v.UpdateField(ctx, id, model.ServiceIdentity, model.FieldPath{Field: model.FieldIDType}, "passport")
	assertCode(t, err, apierror.ErrValidation)
	assert.ErrorIs(t, err, ErrServiceNotChosen)
}

func TestListItems(t *testing.T) {
	v, _ := newTestVetflow(t)
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceEmployment)

	_, err := v.UpdateField(ctx, id, model.ServiceEmployment, model.FieldPath{Field: model.FieldEmployer}, "Acme")
	require.NoError(t, err)

	form, err := v.AddListItem(ctx, id, model.ServiceEmployment, model.ListJobs)
	require.NoError(t, err)
	require.Len(t, form.(*model.EmploymentForm).Jobs, 2)

	_, err = v.UpdateField(ctx, id, model.ServiceEmployment, model.FieldPath{Field: model.FieldEmployer, Index: 1}, "Globex")
	require.NoError(t, err)

	form, err = v.RemoveListItem(ctx, id, model.ServiceEmployment, model.ListJobs, 0)
	require.NoError(t, err)
	jobs := form.(*model.EmploymentForm).Jobs
	require.Len(t, jobs, 1)
	assert.Equal(t, "Globex", jobs[0].Employer)

	_, err = v.RemoveListItem(ctx, id, model.ServiceEmployment, model.ListJobs, 0)
	assertCode(t, err, apierror.ErrValidation)
	assert.ErrorIs(t, err, model.ErrLastListItem)

	_, err = v.AddListItem(ctx, id, model.ServiceEmployment, model.ListDegrees)
	assert.ErrorIs(t, err, model.ErrUnknownList)

	_, err = v.UpdateField(ctx, id, model.ServiceEmployment, model.FieldPath{Field: model.FieldEmployer, Index: 3}, "X")
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
}

func TestAttachDocument(t *testing.T) {
	v, _ := newTestVetflow(t)
	v.cfg.Documents.MaxSizeBytes = 16
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity, model.ServiceReference)

	doc, err := v.AttachDocument(ctx, id, model.ServiceIdentity, 0, "id.pdf", "", []byte("%PDF-1.4 tiny"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Len(t, doc.SHA256, 64)
	assert.Equal(t, "/sessions/"+id+"/forms/identity/documents/0", doc.PreviewURL)

	replacement, err := v.AttachDocument(ctx, id, model.ServiceIdentity, 0, "id.png", "image/png", []byte("png"))
	require.NoError(t, err)
	got, err := v.GetDocument(ctx, id, model.ServiceIdentity, 0)
	require.NoError(t, err)
	assert.Equal(t, replacement.SHA256, got.SHA256)

	_, err = v.AttachDocument(ctx, id, model.ServiceIdentity, 0, "id.exe", "", []byte("MZ"))
	assertCode(t, err, apierror.ErrValidation)

	_, err = v.AttachDocument(ctx, id, model.ServiceIdentity, 0, "big.pdf", "", []byte(strings.Repeat("x", 17)))
	assertCode(t, err, apierror.ErrValidation)

	_, err = v.AttachDocument(ctx, id, model.ServiceIdentity, 0, "empty.pdf", "", nil)
	assertCode(t, err, apierror.ErrValidation)

	_, err = v.AttachDocument(ctx, id, model.ServiceReference, 0, "ref.pdf", "", []byte("pdf"))
	assertCode(t, err, apierror.ErrValidation)
}

func TestGetDocument_NotAttached(t *testing.T) {
	v, _ := newTestVetflow(t)
	id := paidSession(t, v, model.ServiceAddress)

	_, err := v.GetDocument(context.Background(), id, model.ServiceAddress, 0)
	assertCode(t, err, apierror.ErrNotFound)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMarkFormComplete(t *testing.T) {
	v, _ := newTestVetflow(t)
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceIdentity, model.ServiceAddress)

	_, err := v.MarkFormComplete(ctx, id, model.ServiceIdentity)
	assertCode(t, err, apierror.ErrValidation)
	assert.ErrorIs(t, err, ErrFormIncomplete)

	fillIdentity(t, v, id)
	completed, err := v.MarkFormComplete(ctx, id, model.ServiceIdentity)
	require.NoError(t, err)
	assert.True(t, completed.Has(model.ServiceIdentity))

	// Blanking a required field un-marks the form.
	_, err = v.UpdateField(ctx, id, model.ServiceIdentity, model.FieldPath{Field: model.FieldIDNumber}, " ")
	require.NoError(t, err)
	completed, err = v.CompletedForms(ctx, id)
	require.NoError(t, err)
	assert.False(t, completed.Has(model.ServiceIdentity))
}

func TestMarkFormComplete_AddressNeedsNoDocument(t *testing.T) {
	v, _ := newTestVetflow(t)
	ctx := context.Background()
	id := paidSession(t, v, model.ServiceAddress)

	fillAddress(t, v, id)
	completed, err := v.MarkFormComplete(ctx, id, model.ServiceAddress)
	require.NoError(t, err)
	assert.Equal(t, []model.ServiceType{model.ServiceAddress}, completed.Sorted())
}
