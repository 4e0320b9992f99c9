package kyc

import (
	"context"

	"github.com/blnkfinance/vetflow/model"
)

// DocumentDataSource is the part of the session store the verifier needs.
type DocumentDataSource interface {
	GetForm(ctx context.Context, sessionID string, t model.ServiceType) (model.FormData, error)
	GetDocumentChecks(ctx context.Context, sessionID string) (map[model.ServiceType]*model.DocumentCheck, error)
	SaveDocumentCheck(ctx context.Context, check *model.DocumentCheck) error
	GetChecksByStatus(ctx context.Context, status model.CheckStatus) ([]*model.DocumentCheck, error)
}
