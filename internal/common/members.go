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

package common

import (
	"context"
	"fmt"

	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/policy"
	"escrow-ledger-go/internal/store"

	"go.uber.org/zap"
)

// MemberInfo represents simplified member information for command-line utilities
type MemberInfo struct {
	Id     string
	Name   string
	Email  string
	Type   models.MemberType
	FirmId string
	Role   string
}

// InitializeMembers retrieves members based on an optional email filter.
// If emailFilter is provided, returns a single member with that email.
// If emailFilter is empty, returns all members.
func InitializeMembers(ctx context.Context, s store.Store, emailFilter string, logger *zap.Logger) ([]MemberInfo, error) {
	var members []models.Member

	if emailFilter != "" {
		logger.Info("Looking up member by email", zap.String("email", emailFilter))
		member, err := s.GetMemberByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("member not found: %w", err)
		}
		members = append(members, *member)
	} else {
		all, err := s.ListMembers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get members: %w", err)
		}
		members = all
	}

	infos := make([]MemberInfo, 0, len(members))
	for _, m := range members {
		infos = append(infos, MemberInfo{
			Id:     m.Id,
			Name:   m.Name,
			Email:  m.Email,
			Type:   m.Type,
			FirmId: m.FirmId,
			Role:   m.Role,
		})
	}

	logger.Info("Retrieved members", zap.Int("count", len(infos)))
	return infos, nil
}

// ParseActor builds the actor a command runs as from its -actor and -role flags
func ParseActor(id, role string) (policy.Actor, error) {
	if id == "" {
		return policy.Actor{}, fmt.Errorf("actor id is required")
	}
	r, err := policy.ParseRole(role)
	if err != nil {
		return policy.Actor{}, err
	}
	return policy.Actor{Id: id, Role: r}, nil
}
