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
	"time"

	"github.com/jerry-enebeli/cardsettle/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	card
	transaction
}

type card interface {
	// GetCard retrieves a card, served from cache when possible.
	GetCard(ctx context.Context, id string) (*model.Card, error)
	InvalidateCard(ctx context.Context, id string) error
}

// transaction defines the ledger of issuer transactions.
type transaction interface {
	// FindTransaction returns nil and no error when no entry exists.
	FindTransaction(ctx context.Context, id, cardID string) (*model.Transaction, error)
	// UpsertTransaction creates the entry or appends hash and body to it.
	UpsertTransaction(ctx context.Context, id, cardID, hash string, body map[string]interface{}, createdAt time.Time) error
}
