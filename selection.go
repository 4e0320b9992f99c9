package vetflow

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/model"
)

// ComputeTotal sums the prices of the selected services. Ids the catalog does not
// know are skipped.
func ComputeTotal(selection model.Selection, catalog model.Catalog) decimal.Decimal {
	total := decimal.Zero
	for _, id := range selection.Sorted() {
		if svc, ok := catalog.Lookup(id); ok {
			total = total.Add(svc.Price)
		}
	}
	return total
}

// ToggleService adds serviceID to the selection, or removes it and drops the documents
// attached to its form. Other form fields survive the removal.
func (v *Vetflow) ToggleService(ctx context.Context, sessionID string, serviceID model.ServiceType) (model.Selection, error) {
	var sel model.Selection
	_, err := v.withSession(ctx, sessionID, func(s *model.Session) error {
		if err := requireStep(s, model.StepSelectServices, "change the selection"); err != nil {
			return err
		}
		if !sessionCatalog(s).Contains(serviceID) {
			return apierror.Wrap(apierror.ErrValidation, "unknown service "+string(serviceID), ErrUnknownService)
		}

		var err error
		sel, err = v.datasource.GetSelection(ctx, sessionID)
		if err != nil {
			return err
		}

		if sel.Has(serviceID) {
			delete(sel, serviceID)
			if err := v.clearDocuments(ctx, sessionID, serviceID); err != nil {
				return err
			}
		} else {
			sel[serviceID] = struct{}{}
		}

		if err := v.datasource.SetSelection(ctx, sessionID, sel); err != nil {
			return err
		}
		s.SelectedServices = sel.Sorted()
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"service":    serviceID,
		"selected":   sel.Has(serviceID),
	}).Info("service selection toggled")
	return sel, nil
}

func (v *Vetflow) clearDocuments(ctx context.Context, sessionID string, serviceID model.ServiceType) error {
	form, err := v.datasource.GetForm(ctx, sessionID, serviceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	form.ClearDocuments()
	return v.saveForm(ctx, sessionID, form)
}

// GetSelection returns the selected services of a session.
func (v *Vetflow) GetSelection(ctx context.Context, sessionID string) (model.Selection, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	return v.datasource.GetSelection(ctx, sessionID)
}

// Total prices the current selection against the session catalog.
func (v *Vetflow) Total(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	s, err := v.StartSession(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	sel, err := v.datasource.GetSelection(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	return ComputeTotal(sel, sessionCatalog(s)), nil
}
