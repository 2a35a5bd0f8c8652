// Copyright 2026 The Shahin GRC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provisioning

import "time"

// TenantUserLink joins a User to a Tenant with a role and title code. At
// most one active link may exist per (tenant, user) pair.
type TenantUserLink struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	UserID          string     `json:"user_id"`
	RoleCode        string     `json:"role_code"`
	TitleCode       string     `json:"title_code"`
	Status          string     `json:"status"`
	InvitationToken string     `json:"-"`
	InvitedAt       *time.Time `json:"invited_at,omitempty"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	InvitedBy       string     `json:"invited_by"`

	IsOwnerGenerated               bool `json:"is_owner_generated"`
	MustChangePasswordOnFirstLogin bool `json:"must_change_password_on_first_login"`

	CreatedAt time.Time `json:"created_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// Link lifecycle statuses (Invited -> Active -> Suspended/Removed)
const (
	LinkStatusInvited   = "Invited"
	LinkStatusActive    = "Active"
	LinkStatusSuspended = "Suspended"
	LinkStatusRemoved   = "Removed"
)

// Workspace belongs to exactly one Tenant; at most one per tenant is the
// default.
type Workspace struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	WorkspaceCode   string    `json:"workspace_code"`
	Name            string    `json:"name"`
	WorkspaceType   string    `json:"workspace_type"`
	DefaultLanguage string    `json:"default_language"`
	Description     string    `json:"description"`
	IsDefault       bool      `json:"is_default"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	CreatedBy       string    `json:"created_by"`
	IsDeleted       bool      `json:"is_deleted"`
}

// WorkspaceTypeStandard is the type assigned to auto-provisioned workspaces.
const WorkspaceTypeStandard = "Standard"

// CatalogKind selects which code catalog a lookup runs against.
type CatalogKind string

const (
	CatalogRole  CatalogKind = "role"
	CatalogTitle CatalogKind = "title"
)

// Catalog codes. The preferred admin codes are resolved against the active
// catalogs; when absent the documented fallback codes are substituted.
const (
	RoleCodeAdmin    = "ADMIN"
	RoleCodeDefault  = "USER"
	TitleCodeAdmin   = "ADMIN_TITLE"
	TitleCodeDefault = "USER_TITLE"
)
