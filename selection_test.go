package vetflow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/model"
)

func TestComputeTotal(t *testing.T) {
	catalog := model.DefaultCatalog()

	tests := []struct {
		name      string
		selection model.Selection
		want      string
	}{
		{"empty selection", model.NewSelection(), "0"},
		{"single service", model.NewSelection(model.ServiceCredit), "9.99"},
		{"identity and address", model.NewSelection(model.ServiceIdentity, model.ServiceAddress), "34.98"},
		{"every service", model.NewSelection(model.ServiceTypes...), "130.93"},
		{"unknown ids are skipped", model.NewSelection(model.ServiceCredit, "astrology"), "9.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotal(tt.selection, catalog)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestComputeTotal_MatchesSumOfPrices(t *testing.T) {
	catalog := model.DefaultCatalog()
	for i := range catalog {
		sel := model.NewSelection()
		want := decimal.Zero
		for _, svc := range catalog[:i+1] {
			sel[svc.ID] = struct{}{}
			want = want.Add(svc.Price)
		}
		assert.True(t, want.Equal(ComputeTotal(sel, catalog)))
	}
}

func TestToggleService_RoundTripDropsDocuments(t *testing.T) {
	v, _ := newTestVetflow(t)
	ctx := context.Background()
	id := newSessionID()

	selectServices(t, v, id, model.ServiceAddress)
	_, err := v.UpdateField(ctx, id, model.ServiceAddress, model.FieldPath{Field: model.FieldCity}, "Pune")
	require.NoError(t, err)
	_, err = v.AttachDocument(ctx, id, model.ServiceAddress, 0, "bill.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	sel, err := v.ToggleService(ctx, id, model.ServiceAddress)
	require.NoError(t, err)
	assert.False(t, sel.Has(model.ServiceAddress))

	sel, err = v.ToggleService(ctx, id, model.ServiceAddress)
	require.NoError(t, err)
	assert.Equal(t, []model.ServiceType{model.ServiceAddress}, sel.Sorted())

	form, err := v.GetForm(ctx, id, model.ServiceAddress)
	require.NoError(t, err)
	address := form.(*model.AddressForm)
	assert.Equal(t, "Pune", address.City)
	assert.Nil(t, address.Document)

	s, err := v.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []model.ServiceType{model.ServiceAddress}, s.SelectedServices)
}

func TestToggleService_UnknownService(t *testing.T) {
	v, _ := newTestVetflow(t)

	_, err := v.ToggleService(context.Background(), newSessionID(), "astrology")
	assertCode(t, err, apierror.ErrValidation)
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestToggleService_OnlyWhileSelecting(t *testing.T) {
	v, _ := newTestVetflow(t)
	ctx := context.Background()
	id := newSessionID()
	selectServices(t, v, id, model.ServiceCredit)
	_, err := v.ProceedToPayment(ctx, id)
	require.NoError(t, err)

	_, err = v.ToggleService(ctx, id, model.ServiceIdentity)
	assertCode(t, err, apierror.ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTotal(t *testing.T) {
	v, _ := newTestVetflow(t)
	id := newSessionID()
	selectServices(t, v, id, model.ServiceIdentity, model.ServiceAddress)

	total, err := v.Total(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "34.98", total.StringFixed(2))
}
