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
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/cardsettle/internal/apierror"
	"github.com/jerry-enebeli/cardsettle/model"
)

func (d Datasource) FindTransaction(ctx context.Context, id, cardID string) (*model.Transaction, error) {
	ctx, span := otel.Tracer("cardsettle.database").Start(ctx, "FindTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id), attribute.String("card.id", cardID))

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, card_id, hashes, payload, created_at
		FROM cardsettle.transactions
		WHERE id = $1 AND card_id = $2
	`, id, cardID)

	txn := &model.Transaction{}
	var payload []byte
	err := row.Scan(&txn.ID, &txn.CardID, pq.Array(&txn.Hashes), &payload, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}

	if err := json.Unmarshal(payload, &txn.Payload); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal transaction payload", err)
	}
	return txn, nil
}

// UpsertTransaction records one event against (id, cardID) in a single statement. Concurrent
// upserts on the same row are serialized by postgres and each appends exactly once.
func (d Datasource) UpsertTransaction(ctx context.Context, id, cardID, hash string, body map[string]interface{}, createdAt time.Time) error {
	ctx, span := otel.Tracer("cardsettle.database").Start(ctx, "UpsertTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id), attribute.String("hash", hash))

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal transaction body", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO cardsettle.transactions (id, card_id, hashes, payload, created_at)
		VALUES ($1, $2, ARRAY[$3::text], jsonb_build_object('bodies', jsonb_build_array($4::jsonb)), $5)
		ON CONFLICT (id, card_id) DO UPDATE SET
			hashes = cardsettle.transactions.hashes || EXCLUDED.hashes,
			payload = jsonb_set(
				cardsettle.transactions.payload,
				'{bodies}',
				COALESCE(cardsettle.transactions.payload->'bodies', '[]'::jsonb) || (EXCLUDED.payload->'bodies')
			)
	`, id, cardID, hash, string(bodyJSON), createdAt.UTC())
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}
	return nil
}
