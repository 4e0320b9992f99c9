package vetflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/model"
)

var ErrDocumentNotFound = errors.New("document not found")

const defaultMaxDocumentSize = 5 << 20

var formErrors = []error{
	model.ErrUnknownField,
	model.ErrUnknownList,
	model.ErrInvalidFieldValue,
	model.ErrIndexOutOfRange,
	model.ErrLastListItem,
	model.ErrDocumentsNotTaken,
}

func formError(err error) error {
	for _, target := range formErrors {
		if errors.Is(err, target) {
			return apierror.Wrap(apierror.ErrValidation, err.Error(), err)
		}
	}
	return err
}

// chosenService checks that serviceID is offered and selected in the session.
func (v *Vetflow) chosenService(ctx context.Context, s *model.Session, serviceID model.ServiceType) (model.VerificationService, error) {
	svc, ok := sessionCatalog(s).Lookup(serviceID)
	if !ok {
		return svc, apierror.Wrap(apierror.ErrValidation, "unknown service "+string(serviceID), ErrUnknownService)
	}
	sel, err := v.datasource.GetSelection(ctx, s.SessionID)
	if err != nil {
		return svc, err
	}
	if !sel.Has(serviceID) {
		return svc, apierror.Wrap(apierror.ErrValidation, string(serviceID)+" is not selected", ErrServiceNotChosen)
	}
	return svc, nil
}

func (v *Vetflow) loadForm(ctx context.Context, sessionID string, serviceID model.ServiceType) (model.FormData, error) {
	form, err := v.datasource.GetForm(ctx, sessionID, serviceID)
	if errors.Is(err, database.ErrNotFound) {
		return model.NewForm(serviceID)
	}
	return form, err
}

// saveForm persists the whole form and drops it from the completed set when the
// change made it incomplete.
func (v *Vetflow) saveForm(ctx context.Context, sessionID string, form model.FormData) error {
	if err := v.datasource.SaveForm(ctx, sessionID, form); err != nil {
		return err
	}
	if form.IsComplete() {
		return nil
	}
	completed, err := v.datasource.GetCompletedForms(ctx, sessionID)
	if err != nil {
		return err
	}
	if !completed.Has(form.ServiceType()) {
		return nil
	}
	delete(completed, form.ServiceType())
	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"service":    form.ServiceType(),
	}).Info("form no longer complete")
	return v.datasource.SetCompletedForms(ctx, sessionID, completed)
}

func (v *Vetflow) mutateForm(ctx context.Context, sessionID string, serviceID model.ServiceType, fn func(svc model.VerificationService, form model.FormData) error) (model.FormData, error) {
	var form model.FormData
	_, err := v.withSession(ctx, sessionID, func(s *model.Session) error {
		svc, err := v.chosenService(ctx, s, serviceID)
		if err != nil {
			return err
		}
		form, err = v.loadForm(ctx, sessionID, serviceID)
		if err != nil {
			return err
		}
		if err := fn(svc, form); err != nil {
			return formError(err)
		}
		return v.saveForm(ctx, sessionID, form)
	})
	if err != nil {
		return nil, err
	}
	return form, nil
}

// GetForm returns the stored form, or an empty one if nothing was entered yet.
func (v *Vetflow) GetForm(ctx context.Context, sessionID string, serviceID model.ServiceType) (model.FormData, error) {
	s, err := v.StartSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := v.chosenService(ctx, s, serviceID); err != nil {
		return nil, err
	}
	return v.loadForm(ctx, sessionID, serviceID)
}

func (v *Vetflow) UpdateField(ctx context.Context, sessionID string, serviceID model.ServiceType, path model.FieldPath, value interface{}) (model.FormData, error) {
	return v.mutateForm(ctx, sessionID, serviceID, func(_ model.VerificationService, form model.FormData) error {
		return form.SetField(path, value)
	})
}

func listForm(form model.FormData, list string) (model.ListForm, error) {
	lf, ok := form.(model.ListForm)
	if !ok || lf.ListName() != list {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownList, list)
	}
	return lf, nil
}

// AddListItem appends an empty record to a list form.
func (v *Vetflow) AddListItem(ctx context.Context, sessionID string, serviceID model.ServiceType, list string) (model.FormData, error) {
	return v.mutateForm(ctx, sessionID, serviceID, func(_ model.VerificationService, form model.FormData) error {
		lf, err := listForm(form, list)
		if err != nil {
			return err
		}
		lf.AddItem()
		return nil
	})
}

// RemoveListItem drops one record; the last record of a list cannot be removed.
func (v *Vetflow) RemoveListItem(ctx context.Context, sessionID string, serviceID model.ServiceType, list string, index int) (model.FormData, error) {
	return v.mutateForm(ctx, sessionID, serviceID, func(_ model.VerificationService, form model.FormData) error {
		lf, err := listForm(form, list)
		if err != nil {
			return err
		}
		return lf.RemoveItem(index)
	})
}

// MaxDocumentSize is the largest file AttachDocument accepts, in bytes.
func (v *Vetflow) MaxDocumentSize() int64 {
	if v.cfg.Documents.MaxSizeBytes > 0 {
		return v.cfg.Documents.MaxSizeBytes
	}
	return defaultMaxDocumentSize
}

// AttachDocument stores a file on the form record at index, replacing any earlier one.
func (v *Vetflow) AttachDocument(ctx context.Context, sessionID string, serviceID model.ServiceType, index int, fileName, contentType string, data []byte) (*model.Document, error) {
	if len(data) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "document is empty", nil)
	}
	if int64(len(data)) > v.MaxDocumentSize() {
		msg := fmt.Sprintf("document exceeds the %d byte limit", v.MaxDocumentSize())
		return nil, apierror.NewAPIError(apierror.ErrValidation, msg, nil)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	doc := &model.Document{
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		SHA256:      model.DocumentDigest(data),
		Data:        data,
		PreviewURL:  fmt.Sprintf("/sessions/%s/forms/%s/documents/%d", sessionID, serviceID, index),
		UploadedAt:  v.now(),
	}

	_, err := v.mutateForm(ctx, sessionID, serviceID, func(svc model.VerificationService, form model.FormData) error {
		if !svc.AcceptsDocument(fileName) {
			return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("%s accepts %v files only", svc.Name, svc.DocumentTypes), nil)
		}
		return form.AttachDocument(index, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument returns the file attached to the form record at index.
func (v *Vetflow) GetDocument(ctx context.Context, sessionID string, serviceID model.ServiceType, index int) (*model.Document, error) {
	form, err := v.GetForm(ctx, sessionID, serviceID)
	if err != nil {
		return nil, err
	}
	doc, err := form.DocumentAt(index)
	if err != nil {
		return nil, formError(err)
	}
	if doc == nil {
		return nil, apierror.Wrap(apierror.ErrNotFound, "no document attached", ErrDocumentNotFound)
	}
	return doc, nil
}

// MarkFormComplete records a completed form. Incomplete forms are rejected.
func (v *Vetflow) MarkFormComplete(ctx context.Context, sessionID string, serviceID model.ServiceType) (model.Selection, error) {
	var completed model.Selection
	_, err := v.withSession(ctx, sessionID, func(s *model.Session) error {
		if _, err := v.chosenService(ctx, s, serviceID); err != nil {
			return err
		}
		form, err := v.loadForm(ctx, sessionID, serviceID)
		if err != nil {
			return err
		}
		if !form.IsComplete() {
			return apierror.Wrap(apierror.ErrValidation, "fill in every required field of the "+string(serviceID)+" form", ErrFormIncomplete)
		}
		completed, err = v.datasource.GetCompletedForms(ctx, sessionID)
		if err != nil {
			return err
		}
		completed[serviceID] = struct{}{}
		return v.datasource.SetCompletedForms(ctx, sessionID, completed)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"session_id": sessionID, "service": serviceID}).Info("form completed")
	return completed, nil
}

func (v *Vetflow) CompletedForms(ctx context.Context, sessionID string) (model.Selection, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	return v.datasource.GetCompletedForms(ctx, sessionID)
}
