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
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/shahin-grc/provisioner/internal/id"
	"github.com/shahin-grc/provisioner/internal/provisioning"
)

type ProvisioningRepoTestSuite struct {
	suite.Suite
	mock pgxmock.PgxPoolIface
	repo *ProvisioningRepository
	ctx  context.Context
}

func (s *ProvisioningRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(s.T(), err)
	s.mock = mock
	s.repo = NewProvisioningRepository(mock)
	s.ctx = context.Background()
}

func (s *ProvisioningRepoTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestProvisioningRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ProvisioningRepoTestSuite))
}

func uniqueViolation() *pgconn.PgError {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func testTenant() *provisioning.Tenant {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &provisioning.Tenant{
		ID:                    id.NewUUIDv7(),
		Slug:                  "test-1",
		OrganizationName:      "Test 1",
		AdminEmail:            "admin@example.com",
		Email:                 "admin@example.com",
		TenantCode:            "TEST1",
		BusinessCode:          "TEST1-TEN-2026-000001",
		Status:                provisioning.StatusActive,
		IsActive:              true,
		SubscriptionTier:      provisioning.TierEnterprise,
		SubscriptionStartDate: &now,
		DataIsolationLevel:    provisioning.IsolationShared,
		OnboardingStatus:      provisioning.OnboardingCompleted,
		CreatedAt:             now,
		CreatedBy:             provisioning.ActorSystem,
	}
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateTenant_Existing() {
	existing := id.NewUUIDv7()
	s.mock.ExpectQuery(`SELECT id FROM tenants WHERE slug`).
		WithArgs("test-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	gotID, created, err := s.repo.FindOrCreateTenant(s.ctx, testTenant())
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), existing, gotID)
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateTenant_Inserts() {
	t := testTenant()
	s.mock.ExpectQuery(`SELECT id FROM tenants WHERE slug`).
		WithArgs(t.Slug).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectExec(`INSERT INTO tenants`).
		WithArgs(
			t.ID, t.Slug, t.OrganizationName, t.AdminEmail, t.Email,
			t.TenantCode, t.BusinessCode, t.Status, t.IsActive,
			t.ActivationToken, t.ActivatedAt, t.ActivatedBy,
			t.SubscriptionTier, t.SubscriptionStartDate,
			t.CorrelationID, t.DataIsolationLevel, t.OnboardingStatus,
			t.CreatedAt, t.CreatedBy, t.IsDeleted,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gotID, created, err := s.repo.FindOrCreateTenant(s.ctx, t)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.Equal(s.T(), t.ID, gotID)
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateTenant_LostRaceConverges() {
	t := testTenant()
	winner := id.NewUUIDv7()
	s.mock.ExpectQuery(`SELECT id FROM tenants WHERE slug`).
		WithArgs(t.Slug).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectExec(`INSERT INTO tenants`).
		WithArgs(
			t.ID, t.Slug, t.OrganizationName, t.AdminEmail, t.Email,
			t.TenantCode, t.BusinessCode, t.Status, t.IsActive,
			t.ActivationToken, t.ActivatedAt, t.ActivatedBy,
			t.SubscriptionTier, t.SubscriptionStartDate,
			t.CorrelationID, t.DataIsolationLevel, t.OnboardingStatus,
			t.CreatedAt, t.CreatedBy, t.IsDeleted,
		).
		WillReturnError(uniqueViolation())
	s.mock.ExpectQuery(`SELECT id FROM tenants WHERE slug`).
		WithArgs(t.Slug).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(winner))

	gotID, created, err := s.repo.FindOrCreateTenant(s.ctx, t)
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), winner, gotID)
}

func testUser() *provisioning.User {
	return &provisioning.User{
		ID:                 id.NewUUIDv7(),
		UserName:           "admin@example.com",
		Email:              "admin@example.com",
		EmailConfirmed:     true,
		SecurityStamp:      id.NewUUIDv7(),
		ConcurrencyStamp:   id.NewUUIDv7(),
		LockoutEnabled:     true,
		FirstName:          "Admin",
		LastName:           "Test 1",
		Department:         "Administration",
		JobTitle:           "Tenant Administrator",
		IsActive:           true,
		MustChangePassword: true,
		CreatedAt:          time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateUser_ExistingSkipsDerive() {
	u := testUser()
	existing := id.NewUUIDv7()
	s.mock.ExpectQuery(`SELECT id FROM application_users WHERE email`).
		WithArgs(u.Email).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))
	s.mock.ExpectQuery(`SELECT id FROM identity_users WHERE email`).
		WithArgs(u.Email).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	derive := func() (string, error) {
		s.T().Fatal("derive must not be called for an existing user")
		return "", nil
	}

	gotID, created, err := s.repo.FindOrCreateUser(s.ctx, u, derive)
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), existing, gotID)
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateUser_SplitRepresentation() {
	u := testUser()
	s.mock.ExpectQuery(`SELECT id FROM application_users WHERE email`).
		WithArgs(u.Email).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id.NewUUIDv7()))
	s.mock.ExpectQuery(`SELECT id FROM identity_users WHERE email`).
		WithArgs(u.Email).
		WillReturnError(pgx.ErrNoRows)

	_, _, err := s.repo.FindOrCreateUser(s.ctx, u, func() (string, error) { return "h", nil })
	assert.ErrorIs(s.T(), err, provisioning.ErrUserRepresentationSplit)
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateUser_MismatchedIdentifiers() {
	u := testUser()
	s.mock.ExpectQuery(`SELECT id FROM application_users WHERE email`).
		WithArgs(u.Email).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id.NewUUIDv7()))
	s.mock.ExpectQuery(`SELECT id FROM identity_users WHERE email`).
		WithArgs(u.Email).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id.NewUUIDv7()))

	_, _, err := s.repo.FindOrCreateUser(s.ctx, u, func() (string, error) { return "h", nil })
	assert.ErrorIs(s.T(), err, provisioning.ErrUserRepresentationSplit)
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateUser_InsertsBothRepresentations() {
	u := testUser()
	derived := "AQAAAAEAAYagAAAAEA=="
	deriveCalls := 0

	s.mock.ExpectQuery(`SELECT id FROM application_users WHERE email`).
		WithArgs(u.Email).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectQuery(`SELECT id FROM identity_users WHERE email`).
		WithArgs(u.Email).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectExec(`INSERT INTO application_users`).
		WithArgs(
			u.ID, u.UserName, u.NormalizedUserName(), u.Email, u.NormalizedEmail(),
			u.EmailConfirmed, derived, u.SecurityStamp, u.ConcurrencyStamp,
			u.PhoneNumberConfirmed, u.TwoFactorEnabled, u.LockoutEnabled, u.AccessFailedCount,
			u.FirstName, u.LastName, u.Department, u.JobTitle,
			u.IsActive, u.MustChangePassword, u.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	s.mock.ExpectExec(`INSERT INTO identity_users`).
		WithArgs(
			u.ID, u.UserName, u.NormalizedUserName(), u.Email, u.NormalizedEmail(),
			u.EmailConfirmed, derived, u.SecurityStamp, u.ConcurrencyStamp,
			u.PhoneNumberConfirmed, u.TwoFactorEnabled, u.LockoutEnabled, u.AccessFailedCount,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gotID, created, err := s.repo.FindOrCreateUser(s.ctx, u, func() (string, error) {
		deriveCalls++
		return derived, nil
	})
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.Equal(s.T(), u.ID, gotID)
	assert.Equal(s.T(), 1, deriveCalls)
	assert.Equal(s.T(), derived, u.PasswordHash)
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateUser_DeriveError() {
	u := testUser()
	s.mock.ExpectQuery(`SELECT id FROM application_users WHERE email`).
		WithArgs(u.Email).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectQuery(`SELECT id FROM identity_users WHERE email`).
		WithArgs(u.Email).
		WillReturnError(pgx.ErrNoRows)

	wantErr := errors.New("kdf unavailable")
	_, _, err := s.repo.FindOrCreateUser(s.ctx, u, func() (string, error) { return "", wantErr })
	assert.ErrorIs(s.T(), err, wantErr)
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateRole_Existing() {
	existing := id.NewUUIDv7()
	s.mock.ExpectQuery(`SELECT id FROM roles WHERE name`).
		WithArgs(provisioning.RoleAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	gotID, created, err := s.repo.FindOrCreateRole(s.ctx, &provisioning.Role{
		ID:             id.NewUUIDv7(),
		Name:           provisioning.RoleAdmin,
		NormalizedName: "ADMIN",
	})
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), existing, gotID)
}

func (s *ProvisioningRepoTestSuite) TestFindOrCreateRole_Inserts() {
	role := &provisioning.Role{
		ID:               id.NewUUIDv7(),
		Name:             provisioning.RoleAdmin,
		NormalizedName:   "ADMIN",
		ConcurrencyStamp: id.NewUUIDv7(),
	}
	s.mock.ExpectQuery(`SELECT id FROM roles WHERE name`).
		WithArgs(role.Name).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectExec(`INSERT INTO roles`).
		WithArgs(role.ID, role.Name, role.NormalizedName, role.ConcurrencyStamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gotID, created, err := s.repo.FindOrCreateRole(s.ctx, role)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.Equal(s.T(), role.ID, gotID)
}

func (s *ProvisioningRepoTestSuite) TestEnsureRoleAssignment_Grants() {
	userID, roleID := id.NewUUIDv7(), id.NewUUIDv7()
	s.mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs(userID, roleID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := s.repo.EnsureRoleAssignment(s.ctx, userID, roleID)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
}

func (s *ProvisioningRepoTestSuite) TestEnsureRoleAssignment_Idempotent() {
	userID, roleID := id.NewUUIDv7(), id.NewUUIDv7()
	s.mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs(userID, roleID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := s.repo.EnsureRoleAssignment(s.ctx, userID, roleID)
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
}

func testLink() *provisioning.TenantUserLink {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &provisioning.TenantUserLink{
		ID:                             id.NewUUIDv7(),
		TenantID:                       id.NewUUIDv7(),
		UserID:                         id.NewUUIDv7(),
		RoleCode:                       provisioning.RoleCodeAdmin,
		TitleCode:                      provisioning.TitleCodeAdmin,
		Status:                         provisioning.LinkStatusActive,
		InvitationToken:                "tok",
		InvitedAt:                      &now,
		ActivatedAt:                    &now,
		InvitedBy:                      provisioning.ActorSystem,
		IsOwnerGenerated:               true,
		MustChangePasswordOnFirstLogin: true,
		CreatedAt:                      now,
	}
}

func (s *ProvisioningRepoTestSuite) TestEnsureTenantUserLink_Existing() {
	link := testLink()
	existing := id.NewUUIDv7()
	s.mock.ExpectQuery(`SELECT id FROM tenant_users`).
		WithArgs(link.TenantID, link.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	gotID, created, err := s.repo.EnsureTenantUserLink(s.ctx, link)
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), existing, gotID)
}

func (s *ProvisioningRepoTestSuite) TestEnsureTenantUserLink_PreferredCodesActive() {
	link := testLink()
	s.mock.ExpectQuery(`SELECT id FROM tenant_users`).
		WithArgs(link.TenantID, link.UserID).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM role_catalogs`).
		WithArgs(provisioning.RoleCodeAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	s.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM title_catalogs`).
		WithArgs(provisioning.TitleCodeAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	s.mock.ExpectExec(`INSERT INTO tenant_users`).
		WithArgs(
			link.ID, link.TenantID, link.UserID, provisioning.RoleCodeAdmin, provisioning.TitleCodeAdmin,
			link.Status, link.InvitationToken, link.InvitedAt, link.ActivatedAt, link.InvitedBy,
			link.IsOwnerGenerated, link.MustChangePasswordOnFirstLogin,
			link.CreatedAt, link.IsDeleted,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gotID, created, err := s.repo.EnsureTenantUserLink(s.ctx, link)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.Equal(s.T(), link.ID, gotID)
}

func (s *ProvisioningRepoTestSuite) TestEnsureTenantUserLink_FallbackSubstitution() {
	link := testLink()
	s.mock.ExpectQuery(`SELECT id FROM tenant_users`).
		WithArgs(link.TenantID, link.UserID).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM role_catalogs`).
		WithArgs(provisioning.RoleCodeAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	s.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM title_catalogs`).
		WithArgs(provisioning.TitleCodeAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	s.mock.ExpectExec(`INSERT INTO tenant_users`).
		WithArgs(
			link.ID, link.TenantID, link.UserID, provisioning.RoleCodeDefault, provisioning.TitleCodeDefault,
			link.Status, link.InvitationToken, link.InvitedAt, link.ActivatedAt, link.InvitedBy,
			link.IsOwnerGenerated, link.MustChangePasswordOnFirstLogin,
			link.CreatedAt, link.IsDeleted,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gotID, created, err := s.repo.EnsureTenantUserLink(s.ctx, link)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.Equal(s.T(), link.ID, gotID)

	// Resolved codes are written back for the caller's audit trail.
	assert.Equal(s.T(), provisioning.RoleCodeDefault, link.RoleCode)
	assert.Equal(s.T(), provisioning.TitleCodeDefault, link.TitleCode)
}

func (s *ProvisioningRepoTestSuite) TestEnsureDefaultWorkspace_Existing() {
	tenantID := id.NewUUIDv7()
	existing := id.NewUUIDv7()
	s.mock.ExpectQuery(`SELECT id FROM workspaces`).
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	gotID, created, err := s.repo.EnsureDefaultWorkspace(s.ctx, &provisioning.Workspace{
		ID:       id.NewUUIDv7(),
		TenantID: tenantID,
	})
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), existing, gotID)
}

func (s *ProvisioningRepoTestSuite) TestEnsureDefaultWorkspace_Inserts() {
	ws := &provisioning.Workspace{
		ID:              id.NewUUIDv7(),
		TenantID:        id.NewUUIDv7(),
		WorkspaceCode:   "WS-TEST1-001",
		Name:            "Test 1 Workspace",
		WorkspaceType:   provisioning.WorkspaceTypeStandard,
		DefaultLanguage: "en",
		Description:     "Primary workspace for Test 1",
		IsDefault:       true,
		Status:          provisioning.StatusActive,
		CreatedAt:       time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		CreatedBy:       provisioning.ActorSystem,
	}
	s.mock.ExpectQuery(`SELECT id FROM workspaces`).
		WithArgs(ws.TenantID).
		WillReturnError(pgx.ErrNoRows)
	s.mock.ExpectExec(`INSERT INTO workspaces`).
		WithArgs(
			ws.ID, ws.TenantID, ws.WorkspaceCode, ws.Name, ws.WorkspaceType,
			ws.DefaultLanguage, ws.Description, ws.IsDefault, ws.Status,
			ws.CreatedAt, ws.CreatedBy, ws.IsDeleted,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gotID, created, err := s.repo.EnsureDefaultWorkspace(s.ctx, ws)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.Equal(s.T(), ws.ID, gotID)
}

func (s *ProvisioningRepoTestSuite) TestUpdateTenantAdminReference() {
	tenantID, userID := id.NewUUIDv7(), id.NewUUIDv7()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s.mock.ExpectExec(`UPDATE tenants`).
		WithArgs(tenantID, userID, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(s.T(), s.repo.UpdateTenantAdminReference(s.ctx, tenantID, userID, at))
}

func (s *ProvisioningRepoTestSuite) TestUpdateTenantAdminReference_MissingTenant() {
	tenantID, userID := id.NewUUIDv7(), id.NewUUIDv7()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s.mock.ExpectExec(`UPDATE tenants`).
		WithArgs(tenantID, userID, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.repo.UpdateTenantAdminReference(s.ctx, tenantID, userID, at)
	assert.ErrorIs(s.T(), err, provisioning.ErrTenantNotFound)
}

func (s *ProvisioningRepoTestSuite) TestUpdateTenantDefaultWorkspace() {
	tenantID, workspaceID := id.NewUUIDv7(), id.NewUUIDv7()
	s.mock.ExpectExec(`UPDATE tenants SET default_workspace_id`).
		WithArgs(tenantID, workspaceID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(s.T(), s.repo.UpdateTenantDefaultWorkspace(s.ctx, tenantID, workspaceID))
}

func (s *ProvisioningRepoTestSuite) TestCodeActive() {
	s.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM role_catalogs`).
		WithArgs(provisioning.RoleCodeDefault).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := s.repo.CodeActive(s.ctx, provisioning.CatalogRole, provisioning.RoleCodeDefault)
	require.NoError(s.T(), err)
	assert.True(s.T(), active)
}

func (s *ProvisioningRepoTestSuite) TestCodeActive_InactiveTitle() {
	s.mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM title_catalogs`).
		WithArgs("CUSTOM_TITLE").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	active, err := s.repo.CodeActive(s.ctx, provisioning.CatalogTitle, "CUSTOM_TITLE")
	require.NoError(s.T(), err)
	assert.False(s.T(), active)
}
