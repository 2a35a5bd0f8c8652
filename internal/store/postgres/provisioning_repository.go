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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shahin-grc/provisioner/internal/provisioning"
)

// ProvisioningRepository implements provisioning.Repository. Every
// lookup-or-create treats a unique violation on insert as "the row appeared
// concurrently" and re-reads by natural key, so a lost slug/email race
// converges to the idempotent path instead of failing.
type ProvisioningRepository struct {
	q Querier
}

// NewProvisioningRepository creates a repository over q, which may be a
// pool or an open transaction.
func NewProvisioningRepository(q Querier) *ProvisioningRepository {
	return &ProvisioningRepository{q: q}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// FindOrCreateTenant resolves a tenant by slug, inserting it when absent.
func (r *ProvisioningRepository) FindOrCreateTenant(ctx context.Context, t *provisioning.Tenant) (string, bool, error) {
	var existing string
	err := r.q.QueryRow(ctx,
		`SELECT id FROM tenants WHERE slug = $1 AND NOT is_deleted`, t.Slug,
	).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("failed to look up tenant: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO tenants (
			id, slug, organization_name, admin_email, email,
			tenant_code, business_code, status, is_active,
			activation_token, activated_at, activated_by,
			subscription_tier, subscription_start_date,
			correlation_id, data_isolation_level, onboarding_status,
			created_at, created_by, is_deleted
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14,
			$15, $16, $17,
			$18, $19, $20
		)
	`,
		t.ID, t.Slug, t.OrganizationName, t.AdminEmail, t.Email,
		t.TenantCode, t.BusinessCode, t.Status, t.IsActive,
		t.ActivationToken, t.ActivatedAt, t.ActivatedBy,
		t.SubscriptionTier, t.SubscriptionStartDate,
		t.CorrelationID, t.DataIsolationLevel, t.OnboardingStatus,
		t.CreatedAt, t.CreatedBy, t.IsDeleted,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a concurrent race on the slug; the other run's row wins.
			var id string
			if scanErr := r.q.QueryRow(ctx,
				`SELECT id FROM tenants WHERE slug = $1 AND NOT is_deleted`, t.Slug,
			).Scan(&id); scanErr == nil {
				return id, false, nil
			}
		}
		return "", false, fmt.Errorf("failed to insert tenant: %w", err)
	}

	return t.ID, true, nil
}

// FindOrCreateUser resolves the dual-represented user by email. The hash is
// derived via derive only when inserting. A user present in exactly one
// representation, or present in both under different identifiers, is an
// integrity fault and is surfaced, never repaired.
func (r *ProvisioningRepository) FindOrCreateUser(ctx context.Context, u *provisioning.User, derive provisioning.DeriveFunc) (string, bool, error) {
	appID, identityID, err := r.lookupUserPair(ctx, u.Email)
	if err != nil {
		return "", false, err
	}

	switch {
	case appID != "" && identityID != "":
		if appID != identityID {
			return "", false, fmt.Errorf("%w: email %s maps to %s and %s",
				provisioning.ErrUserRepresentationSplit, u.Email, appID, identityID)
		}
		return appID, false, nil
	case appID != "" || identityID != "":
		return "", false, fmt.Errorf("%w: email %s", provisioning.ErrUserRepresentationSplit, u.Email)
	}

	hash, err := derive()
	if err != nil {
		return "", false, err
	}
	u.PasswordHash = hash

	if err := r.insertUserPair(ctx, u); err != nil {
		if isUniqueViolation(err) {
			appID, identityID, lookupErr := r.lookupUserPair(ctx, u.Email)
			if lookupErr == nil && appID != "" && appID == identityID {
				return appID, false, nil
			}
			return "", false, fmt.Errorf("%w: email %s", provisioning.ErrUserRepresentationSplit, u.Email)
		}
		return "", false, err
	}

	return u.ID, true, nil
}

func (r *ProvisioningRepository) lookupUserPair(ctx context.Context, email string) (appID, identityID string, err error) {
	err = r.q.QueryRow(ctx,
		`SELECT id FROM application_users WHERE email = $1`, email,
	).Scan(&appID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", "", fmt.Errorf("failed to look up application user: %w", err)
	}

	err = r.q.QueryRow(ctx,
		`SELECT id FROM identity_users WHERE email = $1`, email,
	).Scan(&identityID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", "", fmt.Errorf("failed to look up identity user: %w", err)
	}

	return appID, identityID, nil
}

func (r *ProvisioningRepository) insertUserPair(ctx context.Context, u *provisioning.User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO application_users (
			id, user_name, normalized_user_name, email, normalized_email,
			email_confirmed, password_hash, security_stamp, concurrency_stamp,
			phone_number_confirmed, two_factor_enabled, lockout_enabled, access_failed_count,
			first_name, last_name, department, job_title,
			is_active, must_change_password, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20
		)
	`,
		u.ID, u.UserName, u.NormalizedUserName(), u.Email, u.NormalizedEmail(),
		u.EmailConfirmed, u.PasswordHash, u.SecurityStamp, u.ConcurrencyStamp,
		u.PhoneNumberConfirmed, u.TwoFactorEnabled, u.LockoutEnabled, u.AccessFailedCount,
		u.FirstName, u.LastName, u.Department, u.JobTitle,
		u.IsActive, u.MustChangePassword, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert application user: %w", err)
	}

	// Same identifier, hash and stamps in the verification representation,
	// or profile and login views diverge.
	_, err = r.q.Exec(ctx, `
		INSERT INTO identity_users (
			id, user_name, normalized_user_name, email, normalized_email,
			email_confirmed, password_hash, security_stamp, concurrency_stamp,
			phone_number_confirmed, two_factor_enabled, lockout_enabled, access_failed_count
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13
		)
	`,
		u.ID, u.UserName, u.NormalizedUserName(), u.Email, u.NormalizedEmail(),
		u.EmailConfirmed, u.PasswordHash, u.SecurityStamp, u.ConcurrencyStamp,
		u.PhoneNumberConfirmed, u.TwoFactorEnabled, u.LockoutEnabled, u.AccessFailedCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert identity user: %w", err)
	}

	return nil
}

// FindOrCreateRole resolves the globally defined role by name.
func (r *ProvisioningRepository) FindOrCreateRole(ctx context.Context, role *provisioning.Role) (string, bool, error) {
	var existing string
	err := r.q.QueryRow(ctx,
		`SELECT id FROM roles WHERE name = $1`, role.Name,
	).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("failed to look up role: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO roles (id, name, normalized_name, concurrency_stamp)
		VALUES ($1, $2, $3, $4)
	`, role.ID, role.Name, role.NormalizedName, role.ConcurrencyStamp)
	if err != nil {
		if isUniqueViolation(err) {
			var id string
			if scanErr := r.q.QueryRow(ctx,
				`SELECT id FROM roles WHERE name = $1`, role.Name,
			).Scan(&id); scanErr == nil {
				return id, false, nil
			}
		}
		return "", false, fmt.Errorf("failed to insert role: %w", err)
	}

	return role.ID, true, nil
}

// EnsureRoleAssignment grants roleID to userID; already-granted is a no-op.
func (r *ProvisioningRepository) EnsureRoleAssignment(ctx context.Context, userID, roleID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to assign role: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnsureTenantUserLink creates the tenant-user join row unless one already
// exists for the pair. Preferred role and title codes are resolved against
// the active catalogs with fallback substitution and written back into link.
func (r *ProvisioningRepository) EnsureTenantUserLink(ctx context.Context, link *provisioning.TenantUserLink) (string, bool, error) {
	var existing string
	err := r.q.QueryRow(ctx, `
		SELECT id FROM tenant_users
		WHERE tenant_id = $1 AND user_id = $2 AND NOT is_deleted
	`, link.TenantID, link.UserID).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("failed to look up tenant-user link: %w", err)
	}

	roleCode, err := r.resolveCode(ctx, provisioning.CatalogRole, link.RoleCode, provisioning.RoleCodeDefault)
	if err != nil {
		return "", false, err
	}
	titleCode, err := r.resolveCode(ctx, provisioning.CatalogTitle, link.TitleCode, provisioning.TitleCodeDefault)
	if err != nil {
		return "", false, err
	}
	link.RoleCode = roleCode
	link.TitleCode = titleCode

	_, err = r.q.Exec(ctx, `
		INSERT INTO tenant_users (
			id, tenant_id, user_id, role_code, title_code,
			status, invitation_token, invited_at, activated_at, invited_by,
			is_owner_generated, must_change_password_on_first_login,
			created_at, is_deleted
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12,
			$13, $14
		)
	`,
		link.ID, link.TenantID, link.UserID, roleCode, titleCode,
		link.Status, link.InvitationToken, link.InvitedAt, link.ActivatedAt, link.InvitedBy,
		link.IsOwnerGenerated, link.MustChangePasswordOnFirstLogin,
		link.CreatedAt, link.IsDeleted,
	)
	if err != nil {
		if isUniqueViolation(err) {
			var linkID string
			if scanErr := r.q.QueryRow(ctx, `
				SELECT id FROM tenant_users
				WHERE tenant_id = $1 AND user_id = $2 AND NOT is_deleted
			`, link.TenantID, link.UserID).Scan(&linkID); scanErr == nil {
				return linkID, false, nil
			}
		}
		return "", false, fmt.Errorf("failed to insert tenant-user link: %w", err)
	}

	return link.ID, true, nil
}

// resolveCode keeps the preferred catalog code when it is active, otherwise
// substitutes the documented fallback. Missing preferred codes are not an
// error.
func (r *ProvisioningRepository) resolveCode(ctx context.Context, kind provisioning.CatalogKind, preferred, fallback string) (string, error) {
	active, err := r.CodeActive(ctx, kind, preferred)
	if err != nil {
		return "", err
	}
	if active {
		return preferred, nil
	}
	return fallback, nil
}

// EnsureDefaultWorkspace creates the tenant's default workspace when absent.
func (r *ProvisioningRepository) EnsureDefaultWorkspace(ctx context.Context, ws *provisioning.Workspace) (string, bool, error) {
	var existing string
	err := r.q.QueryRow(ctx, `
		SELECT id FROM workspaces
		WHERE tenant_id = $1 AND is_default AND NOT is_deleted
	`, ws.TenantID).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("failed to look up default workspace: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO workspaces (
			id, tenant_id, workspace_code, name, workspace_type,
			default_language, description, is_default, status,
			created_at, created_by, is_deleted
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12
		)
	`,
		ws.ID, ws.TenantID, ws.WorkspaceCode, ws.Name, ws.WorkspaceType,
		ws.DefaultLanguage, ws.Description, ws.IsDefault, ws.Status,
		ws.CreatedAt, ws.CreatedBy, ws.IsDeleted,
	)
	if err != nil {
		if isUniqueViolation(err) {
			var id string
			if scanErr := r.q.QueryRow(ctx, `
				SELECT id FROM workspaces
				WHERE tenant_id = $1 AND is_default AND NOT is_deleted
			`, ws.TenantID).Scan(&id); scanErr == nil {
				return id, false, nil
			}
		}
		return "", false, fmt.Errorf("failed to insert workspace: %w", err)
	}

	return ws.ID, true, nil
}

// UpdateTenantAdminReference stamps the first-admin reference; safe to
// repeat.
func (r *ProvisioningRepository) UpdateTenantAdminReference(ctx context.Context, tenantID, userID string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tenants
		SET first_admin_user_id = $2, admin_account_generated = TRUE, admin_account_generated_at = $3
		WHERE id = $1
	`, tenantID, userID, at)
	if err != nil {
		return fmt.Errorf("failed to update tenant admin reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return provisioning.ErrTenantNotFound
	}
	return nil
}

// UpdateTenantDefaultWorkspace stamps the default-workspace reference; safe
// to repeat.
func (r *ProvisioningRepository) UpdateTenantDefaultWorkspace(ctx context.Context, tenantID, workspaceID string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tenants SET default_workspace_id = $2 WHERE id = $1
	`, tenantID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to update tenant default workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return provisioning.ErrTenantNotFound
	}
	return nil
}

// CodeActive reports whether code is present and active in the catalog.
func (r *ProvisioningRepository) CodeActive(ctx context.Context, kind provisioning.CatalogKind, code string) (bool, error) {
	table := "role_catalogs"
	if kind == provisioning.CatalogTitle {
		table = "title_catalogs"
	}

	var active bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE code = $1 AND is_active)`, code,
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("failed to check %s catalog: %w", kind, err)
	}
	return active, nil
}
