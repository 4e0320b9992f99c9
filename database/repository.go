/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"

	"github.com/blnkfinance/vetflow/model"
)

// Logical keys of the per-session state.
const (
	KeyWorkflowSession  = "workflowSession"
	KeySelectedServices = "selectedServices"
	KeyCompletedForms   = "completedForms"
	KeyDocumentChecks   = "documentChecks"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	session        // Workflow session state
	selection      // Selected services
	completedForms // Completed forms set
	forms          // Per-service verification data
	documentChecks // Document verification checks
	observable     // Change notifications
}

type session interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error) // Returns ErrNotFound when absent
	SaveSession(ctx context.Context, s *model.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type selection interface {
	GetSelection(ctx context.Context, sessionID string) (model.Selection, error) // Empty when absent
	SetSelection(ctx context.Context, sessionID string, sel model.Selection) error
	ClearSelection(ctx context.Context, sessionID string) error
}

type completedForms interface {
	GetCompletedForms(ctx context.Context, sessionID string) (model.Selection, error) // Empty when absent
	SetCompletedForms(ctx context.Context, sessionID string, completed model.Selection) error
	ClearCompletedForms(ctx context.Context, sessionID string) error
}

type forms interface {
	GetForm(ctx context.Context, sessionID string, t model.ServiceType) (model.FormData, error) // Returns ErrNotFound when absent
	SaveForm(ctx context.Context, sessionID string, form model.FormData) error
	ClearForms(ctx context.Context, sessionID string) error
}

type documentChecks interface {
	GetDocumentChecks(ctx context.Context, sessionID string) (map[model.ServiceType]*model.DocumentCheck, error)
	SaveDocumentCheck(ctx context.Context, check *model.DocumentCheck) error
	GetChecksByStatus(ctx context.Context, status model.CheckStatus) ([]*model.DocumentCheck, error)
}

type observable interface {
	// Subscribe registers fn for writes to sessionID. fn runs synchronously on
	// the writing goroutine after the write succeeded.
	Subscribe(sessionID string, fn func(Event)) (unsubscribe func())
}

// Event describes a write to one logical key of a session.
type Event struct {
	SessionID string
	Key       string
	Deleted   bool
}
