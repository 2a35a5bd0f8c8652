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

// Package provisioning implements the tenant onboarding workflow: one
// transaction that resolves or creates the tenant, its admin user (in both
// representations), the Admin role and assignment, the tenant-user link and
// the default workspace.
package provisioning

import (
	"time"
)

// Tenant represents an isolated customer organization.
type Tenant struct {
	ID                      string     `json:"id"`
	Slug                    string     `json:"slug"`
	OrganizationName        string     `json:"organization_name"`
	AdminEmail              string     `json:"admin_email"`
	Email                   string     `json:"email"`
	TenantCode              string     `json:"tenant_code"`
	BusinessCode            string     `json:"business_code"`
	Status                  string     `json:"status"`
	IsActive                bool       `json:"is_active"`
	ActivationToken         string     `json:"-"`
	ActivatedAt             *time.Time `json:"activated_at,omitempty"`
	ActivatedBy             string     `json:"activated_by"`
	SubscriptionTier        string     `json:"subscription_tier"`
	SubscriptionStartDate   *time.Time `json:"subscription_start_date,omitempty"`
	CorrelationID           string     `json:"correlation_id"`
	DataIsolationLevel      string     `json:"data_isolation_level"`
	OnboardingStatus        string     `json:"onboarding_status"`
	FirstAdminUserID        *string    `json:"first_admin_user_id,omitempty"`
	AdminAccountGenerated   bool       `json:"admin_account_generated"`
	AdminAccountGeneratedAt *time.Time `json:"admin_account_generated_at,omitempty"`
	DefaultWorkspaceID      *string    `json:"default_workspace_id,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	CreatedBy               string     `json:"created_by"`
	IsDeleted               bool       `json:"is_deleted"`
}

// Tenant status constants
const (
	StatusActive      = "Active"
	StatusSuspended   = "Suspended"
	StatusDeactivated = "Deactivated"
)

// Onboarding status constants
const (
	OnboardingNotStarted = "NOT_STARTED"
	OnboardingInProgress = "IN_PROGRESS"
	OnboardingCompleted  = "COMPLETED"
)

// Data isolation levels
const (
	IsolationShared    = "Shared"
	IsolationDedicated = "Dedicated"
)

// Subscription tiers
const (
	TierEnterprise = "Enterprise"
	TierStandard   = "Standard"
	TierTrial      = "Trial"
)

// ActorSystem is the authorship value recorded on rows created by the
// provisioning workflow.
const ActorSystem = "system"
