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
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/cardsettle/internal/apierror"
	"github.com/jerry-enebeli/cardsettle/model"
)

func cardKey(id string) string {
	return fmt.Sprintf("card:%s", id)
}

func (d Datasource) GetCard(ctx context.Context, id string) (*model.Card, error) {
	ctx, span := otel.Tracer("cardsettle.database").Start(ctx, "GetCard")
	defer span.End()

	if d.Cache == nil {
		return d.getCard(ctx, id)
	}

	card := &model.Card{}
	err := d.Cache.Once(ctx, cardKey(id), card, cardTTL, func() (interface{}, error) {
		return d.getCard(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

func (d Datasource) getCard(ctx context.Context, id string) (*model.Card, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, account, user_id, mode, status, last_four, created_at
		FROM cardsettle.cards
		WHERE id = $1
	`, id)

	card := &model.Card{}
	err := row.Scan(&card.ID, &card.Account, &card.UserID, &card.Mode, &card.Status, &card.LastFour, &card.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrCardNotFound, fmt.Sprintf("Card with ID '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve card", err)
	}
	return card, nil
}

func (d Datasource) InvalidateCard(ctx context.Context, id string) error {
	if d.Cache == nil {
		return nil
	}
	return d.Cache.Delete(ctx, cardKey(id))
}
