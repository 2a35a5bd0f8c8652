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

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"time"

	"github.com/shahin-grc/provisioner/internal/audit"
	"github.com/shahin-grc/provisioner/internal/credential"
	"github.com/shahin-grc/provisioner/internal/id"
	"github.com/shahin-grc/provisioner/internal/notification"
	"github.com/shahin-grc/provisioner/internal/observability/logger"
)

// Notifier delivers the credential after commit. Its failure is reported in
// the DeliveryResult, never as an error.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) notification.DeliveryResult
}

// Request describes the tenant and admin to provision.
type Request struct {
	Slug             string `json:"slug"`
	OrganizationName string `json:"organization_name"`
	TenantCode       string `json:"tenant_code"`
	AdminEmail       string `json:"admin_email"`
	AdminFirstName   string `json:"admin_first_name"`
	AdminLastName    string `json:"admin_last_name"`
	// Password is optional; a random temporary password is generated when
	// empty. Either way the admin must change it on first login.
	Password         string `json:"password,omitempty"`
	SubscriptionTier string `json:"subscription_tier"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func (r *Request) validate() error {
	if r.Slug == "" || !slugPattern.MatchString(r.Slug) {
		return fmt.Errorf("%w: slug must be non-empty lowercase alphanumeric with hyphens", ErrInvalidRequest)
	}
	if r.OrganizationName == "" {
		return fmt.Errorf("%w: organization name is required", ErrInvalidRequest)
	}
	if r.TenantCode == "" {
		return fmt.Errorf("%w: tenant code is required", ErrInvalidRequest)
	}
	if _, err := mail.ParseAddress(r.AdminEmail); err != nil {
		return fmt.Errorf("%w: invalid admin email: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Result is the outcome of a provisioning run. Password carries the
// plaintext temporary password for operator display; it is empty when the
// admin user already existed and is never logged.
type Result struct {
	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id"`
	RoleID      string `json:"role_id"`
	LinkID      string `json:"link_id"`
	WorkspaceID string `json:"workspace_id"`

	TenantCreated    bool `json:"tenant_created"`
	UserCreated      bool `json:"user_created"`
	WorkspaceCreated bool `json:"workspace_created"`

	Password string                      `json:"-"`
	Delivery notification.DeliveryResult `json:"-"`
}

// Orchestrator sequences the provisioning steps as one transaction, then
// drives the notifier exactly once after commit.
type Orchestrator struct {
	store       TxRunner
	hasher      *credential.Hasher
	notifier    Notifier
	auditLogger audit.Logger
	loginURL    string
	now         func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(store TxRunner, hasher *credential.Hasher, notifier Notifier, auditLogger audit.Logger, loginURL string) *Orchestrator {
	return &Orchestrator{
		store:       store,
		hasher:      hasher,
		notifier:    notifier,
		auditLogger: auditLogger,
		loginURL:    loginURL,
		now:         time.Now,
	}
}

// Provision runs the full workflow. All store writes happen inside one
// transaction: any failure rolls everything back and no partial state
// survives. Re-running with the same slug and admin email converges to the
// identical final state and proceeds straight to notification.
func (o *Orchestrator) Provision(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	password := req.Password
	if password == "" {
		generated, err := credential.GeneratePassword(credential.MinPasswordLength + 2)
		if err != nil {
			return nil, err
		}
		password = generated
	}
	if req.SubscriptionTier == "" {
		req.SubscriptionTier = TierEnterprise
	}

	res := &Result{Password: password}
	now := o.now().UTC()

	err := o.store.WithinTx(ctx, func(repo Repository) error {
		if err := o.checkFallbackCodes(ctx, repo); err != nil {
			return err
		}
		if err := o.provisionEntities(ctx, repo, req, password, now, res); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// On a converged re-run the admin already existed, so the password
	// resolved above was never stored. Presenting it as the account
	// credential would hand out something that verifies against nothing.
	if !res.UserCreated {
		res.Password = ""
	}

	slog.InfoContext(ctx, "tenant provisioned",
		logger.TenantID(res.TenantID),
		logger.Slug(req.Slug),
		logger.UserID(res.UserID),
		slog.Bool("tenant_created", res.TenantCreated),
		slog.Bool("user_created", res.UserCreated),
	)

	// Notification runs strictly after commit; its failure must not undo
	// or fail the provisioning run.
	res.Delivery = o.notifier.Notify(ctx, notification.Notification{
		Recipient:  req.AdminEmail,
		TenantID:   res.TenantID,
		TenantName: req.OrganizationName,
		Password:   res.Password,
		LoginURL:   o.loginURL,
	})

	return res, nil
}

// checkFallbackCodes verifies the documented fallback catalog codes are
// active before any link can silently substitute them.
func (o *Orchestrator) checkFallbackCodes(ctx context.Context, repo Repository) error {
	for _, fc := range []struct {
		kind CatalogKind
		code string
	}{
		{CatalogRole, RoleCodeDefault},
		{CatalogTitle, TitleCodeDefault},
	} {
		active, err := repo.CodeActive(ctx, fc.kind, fc.code)
		if err != nil {
			return fmt.Errorf("failed to check %s catalog: %w", fc.kind, err)
		}
		if !active {
			return fmt.Errorf("%w: %s catalog code %q", ErrFallbackCodeInactive, fc.kind, fc.code)
		}
	}
	return nil
}

func (o *Orchestrator) provisionEntities(ctx context.Context, repo Repository, req Request, password string, now time.Time, res *Result) error {
	// Step 1: tenant by slug.
	activationToken, err := id.NewToken(32)
	if err != nil {
		return err
	}
	tenantID, tenantCreated, err := repo.FindOrCreateTenant(ctx, &Tenant{
		ID:                    id.NewUUIDv7(),
		Slug:                  req.Slug,
		OrganizationName:      req.OrganizationName,
		AdminEmail:            req.AdminEmail,
		Email:                 req.AdminEmail,
		TenantCode:            req.TenantCode,
		BusinessCode:          fmt.Sprintf("%s-TEN-%d-000001", req.TenantCode, now.Year()),
		Status:                StatusActive,
		IsActive:              true,
		ActivationToken:       activationToken,
		ActivatedAt:           &now,
		ActivatedBy:           ActorSystem,
		SubscriptionTier:      req.SubscriptionTier,
		SubscriptionStartDate: &now,
		CorrelationID:         id.NewUUIDv7(),
		DataIsolationLevel:    IsolationShared,
		OnboardingStatus:      OnboardingNotStarted,
		CreatedAt:             now,
		CreatedBy:             ActorSystem,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve tenant: %w", err)
	}
	res.TenantID = tenantID
	res.TenantCreated = tenantCreated
	if tenantCreated {
		o.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeTenantCreated,
			TenantID: tenantID,
			ActorID:  audit.ActorSystem,
			Resource: audit.ResourceTenant,
			Metadata: map[string]any{audit.AttrSlug: req.Slug},
		})
	}

	firstName := req.AdminFirstName
	if firstName == "" {
		firstName = "Admin"
	}

	// Steps 2+3: dual-represented user by email; the hash is derived only
	// when the repository actually inserts.
	userID, userCreated, err := repo.FindOrCreateUser(ctx, &User{
		ID:                 id.NewUUIDv7(),
		UserName:           req.AdminEmail,
		Email:              req.AdminEmail,
		EmailConfirmed:     true,
		SecurityStamp:      id.NewUUIDv7(),
		ConcurrencyStamp:   id.NewUUIDv7(),
		LockoutEnabled:     true,
		FirstName:          firstName,
		LastName:           req.AdminLastName,
		Department:         "Administration",
		JobTitle:           "Tenant Administrator",
		IsActive:           true,
		MustChangePassword: true,
		CreatedAt:          now,
	}, func() (string, error) {
		return o.hasher.Derive(password)
	})
	if err != nil {
		return fmt.Errorf("failed to resolve admin user: %w", err)
	}
	res.UserID = userID
	res.UserCreated = userCreated
	if userCreated {
		o.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeUserCreated,
			TenantID: tenantID,
			ActorID:  audit.ActorSystem,
			Resource: audit.ResourceUser,
			Metadata: map[string]any{audit.AttrEmail: req.AdminEmail},
		})
	}

	// Step 4: global Admin role, created lazily.
	role := &Role{
		ID:               id.NewUUIDv7(),
		Name:             RoleAdmin,
		NormalizedName:   "ADMIN",
		ConcurrencyStamp: id.NewUUIDv7(),
	}
	roleID, roleCreated, err := repo.FindOrCreateRole(ctx, role)
	if err != nil {
		return fmt.Errorf("failed to resolve role: %w", err)
	}
	res.RoleID = roleID
	if roleCreated {
		o.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeRoleCreated,
			TenantID: tenantID,
			ActorID:  audit.ActorSystem,
			Resource: audit.ResourceRole,
			Metadata: map[string]any{audit.AttrRoleCode: role.NormalizedName},
		})
	}

	// Step 5: role assignment.
	assigned, err := repo.EnsureRoleAssignment(ctx, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	if assigned {
		o.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeRoleAssigned,
			TenantID: tenantID,
			ActorID:  audit.ActorSystem,
			Resource: audit.ResourceRole,
			Metadata: map[string]any{
				audit.AttrEmail:    req.AdminEmail,
				audit.AttrRoleCode: role.NormalizedName,
			},
		})
	}

	// Step 6: tenant-user link with catalog code resolution.
	invitationToken, err := id.NewToken(32)
	if err != nil {
		return err
	}
	link := &TenantUserLink{
		ID:                             id.NewUUIDv7(),
		TenantID:                       tenantID,
		UserID:                         userID,
		RoleCode:                       RoleCodeAdmin,
		TitleCode:                      TitleCodeAdmin,
		Status:                         LinkStatusActive,
		InvitationToken:                invitationToken,
		InvitedAt:                      &now,
		ActivatedAt:                    &now,
		InvitedBy:                      ActorSystem,
		IsOwnerGenerated:               true,
		MustChangePasswordOnFirstLogin: true,
		CreatedAt:                      now,
	}
	linkID, linkCreated, err := repo.EnsureTenantUserLink(ctx, link)
	if err != nil {
		return fmt.Errorf("failed to link user to tenant: %w", err)
	}
	res.LinkID = linkID
	if linkCreated {
		// The repository wrote the resolved catalog codes back into link.
		o.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeTenantUserLinked,
			TenantID: tenantID,
			ActorID:  audit.ActorSystem,
			Resource: audit.ResourceUser,
			Metadata: map[string]any{
				audit.AttrEmail:     req.AdminEmail,
				audit.AttrRoleCode:  link.RoleCode,
				audit.AttrTitleCode: link.TitleCode,
			},
		})
	}

	// Step 7: admin reference on the tenant.
	if err := repo.UpdateTenantAdminReference(ctx, tenantID, userID, now); err != nil {
		return fmt.Errorf("failed to update tenant admin reference: %w", err)
	}

	// Step 8: default workspace.
	workspaceID, workspaceCreated, err := repo.EnsureDefaultWorkspace(ctx, &Workspace{
		ID:              id.NewUUIDv7(),
		TenantID:        tenantID,
		WorkspaceCode:   fmt.Sprintf("WS-%s-001", req.TenantCode),
		Name:            req.OrganizationName + " Workspace",
		WorkspaceType:   WorkspaceTypeStandard,
		DefaultLanguage: "en",
		Description:     "Primary workspace for " + req.OrganizationName,
		IsDefault:       true,
		Status:          StatusActive,
		CreatedAt:       now,
		CreatedBy:       ActorSystem,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve default workspace: %w", err)
	}
	res.WorkspaceID = workspaceID
	res.WorkspaceCreated = workspaceCreated
	if workspaceCreated {
		if err := repo.UpdateTenantDefaultWorkspace(ctx, tenantID, workspaceID); err != nil {
			return fmt.Errorf("failed to update tenant default workspace: %w", err)
		}
		o.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeWorkspaceCreated,
			TenantID: tenantID,
			ActorID:  audit.ActorSystem,
			Resource: audit.ResourceWorkspace,
			Metadata: map[string]any{audit.AttrWorkspaceID: workspaceID},
		})
	}

	return nil
}
