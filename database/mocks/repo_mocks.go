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
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/jerry-enebeli/cardsettle/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Card methods

func (m *MockDataSource) GetCard(ctx context.Context, id string) (*model.Card, error) {
	args := m.Called(ctx, id)
	card, _ := args.Get(0).(*model.Card)
	return card, args.Error(1)
}

func (m *MockDataSource) InvalidateCard(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Transaction methods

func (m *MockDataSource) FindTransaction(ctx context.Context, id, cardID string) (*model.Transaction, error) {
	args := m.Called(ctx, id, cardID)
	txn, _ := args.Get(0).(*model.Transaction)
	return txn, args.Error(1)
}

func (m *MockDataSource) UpsertTransaction(ctx context.Context, id, cardID, hash string, body map[string]interface{}, createdAt time.Time) error {
	args := m.Called(ctx, id, cardID, hash, body, createdAt)
	return args.Error(0)
}
