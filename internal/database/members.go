/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanMember(row scanner) (*models.Member, error) {
	var m models.Member
	err := row.Scan(&m.Id, &m.Name, &m.Email, &m.Type, &m.FirmId, &m.Role, &m.TaxCategory,
		&m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func getMember(ctx context.Context, q querier, query, key string) (*models.Member, error) {
	member, err := scanMember(q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: member %s", store.ErrNotFound, key)
		}
		zap.L().Error("Failed to query member", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("unable to query member: %w", err)
	}
	return member, nil
}

func listMembers(ctx context.Context, q querier, query string, args ...any) ([]models.Member, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		zap.L().Error("Failed to query members", zap.Error(err))
		return nil, fmt.Errorf("unable to query members: %w", err)
	}
	defer closeRows(rows)

	var members []models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			zap.L().Error("Failed to scan member row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan member row: %w", err)
		}
		members = append(members, *member)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during member row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return members, nil
}

func (s *Service) ListMembers(ctx context.Context) ([]models.Member, error) {
	zap.L().Debug("Querying active members")

	members, err := listMembers(ctx, s.db, queryGetActiveMembers)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Retrieved members", zap.Int("count", len(members)))
	return members, nil
}

func (s *Service) GetMember(ctx context.Context, memberId string) (*models.Member, error) {
	zap.L().Debug("Querying member by ID", zap.String("member_id", memberId))
	return getMember(ctx, s.db, queryGetMemberById, memberId)
}

func (s *Service) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	zap.L().Debug("Querying member by email", zap.String("email", email))
	return getMember(ctx, s.db, queryGetMemberByEmail, email)
}

func (s *Service) CreateMember(ctx context.Context, params store.CreateMemberParams) (*models.Member, error) {
	if strings.TrimSpace(params.Name) == "" || strings.TrimSpace(params.Email) == "" {
		return nil, store.Invalid("member", params.Id, "name and email are required")
	}
	if params.Type != models.MemberIndividual && params.Type != models.MemberFirm {
		return nil, store.Invalid("member", params.Id, "type must be individual or firm, got %q", params.Type)
	}
	if params.Id == "" {
		params.Id = uuid.New().String()
	}

	zap.L().Info("Creating member",
		zap.String("id", params.Id),
		zap.String("name", params.Name),
		zap.String("email", params.Email),
		zap.String("type", string(params.Type)))

	ts := now()
	result, err := s.db.ExecContext(ctx, queryInsertMember, params.Id, params.Name, params.Email, params.Type,
		params.FirmId, params.Role, params.TaxCategory, ts, ts)
	if err != nil {
		zap.L().Error("Failed to insert member", zap.String("email", params.Email), zap.Error(err))
		return nil, fmt.Errorf("unable to insert member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("member with email %s already exists", params.Email)
	}

	zap.L().Info("Member created successfully", zap.String("id", params.Id), zap.String("name", params.Name))
	return s.GetMember(ctx, params.Id)
}
