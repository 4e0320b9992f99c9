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
package mocks

import (
	"context"

	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Session methods

func (m *MockDataSource) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*model.Session)
	return s, args.Error(1)
}

func (m *MockDataSource) SaveSession(ctx context.Context, s *model.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockDataSource) DeleteSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// Selection methods

func (m *MockDataSource) GetSelection(ctx context.Context, sessionID string) (model.Selection, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(model.Selection)
	return s, args.Error(1)
}

func (m *MockDataSource) SetSelection(ctx context.Context, sessionID string, sel model.Selection) error {
	args := m.Called(ctx, sessionID, sel)
	return args.Error(0)
}

func (m *MockDataSource) ClearSelection(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// Completed forms methods

func (m *MockDataSource) GetCompletedForms(ctx context.Context, sessionID string) (model.Selection, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(model.Selection)
	return s, args.Error(1)
}

func (m *MockDataSource) SetCompletedForms(ctx context.Context, sessionID string, completed model.Selection) error {
	args := m.Called(ctx, sessionID, completed)
	return args.Error(0)
}

func (m *MockDataSource) ClearCompletedForms(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// Form methods

func (m *MockDataSource) GetForm(ctx context.Context, sessionID string, t model.ServiceType) (model.FormData, error) {
	args := m.Called(ctx, sessionID, t)
	f, _ := args.Get(0).(model.FormData)
	return f, args.Error(1)
}

func (m *MockDataSource) SaveForm(ctx context.Context, sessionID string, form model.FormData) error {
	args := m.Called(ctx, sessionID, form)
	return args.Error(0)
}

func (m *MockDataSource) ClearForms(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// Document check methods

func (m *MockDataSource) GetDocumentChecks(ctx context.Context, sessionID string) (map[model.ServiceType]*model.DocumentCheck, error) {
	args := m.Called(ctx, sessionID)
	c, _ := args.Get(0).(map[model.ServiceType]*model.DocumentCheck)
	return c, args.Error(1)
}

func (m *MockDataSource) SaveDocumentCheck(ctx context.Context, check *model.DocumentCheck) error {
	args := m.Called(ctx, check)
	return args.Error(0)
}

func (m *MockDataSource) GetChecksByStatus(ctx context.Context, status model.CheckStatus) ([]*model.DocumentCheck, error) {
	args := m.Called(ctx, status)
	c, _ := args.Get(0).([]*model.DocumentCheck)
	return c, args.Error(1)
}

// Subscribe never delivers events; tests drive state through the mock instead.
func (m *MockDataSource) Subscribe(string, func(database.Event)) func() {
	return func() {}
}
