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
	"time"
)

// DeriveFunc lazily produces a password hash. FindOrCreateUser invokes it
// only when the user does not already exist, so no hash is derived for
// re-runs against an existing admin.
type DeriveFunc func() (string, error)

// Repository is the relational-store boundary. Every operation follows
// lookup-or-create semantics on the entity's natural key and is safe to
// re-run: a second identical call returns the existing identifier without
// writing duplicate rows.
type Repository interface {
	// FindOrCreateTenant resolves the tenant by slug, inserting it when
	// absent. Reports whether a row was created.
	FindOrCreateTenant(ctx context.Context, t *Tenant) (id string, created bool, err error)

	// FindOrCreateUser resolves the user by email across both
	// representations, inserting into both when absent. A user present in
	// only one representation is an integrity fault
	// (ErrUserRepresentationSplit), surfaced, never repaired.
	FindOrCreateUser(ctx context.Context, u *User, derive DeriveFunc) (id string, created bool, err error)

	// FindOrCreateRole resolves the globally defined role by name. Reports
	// whether a row was created.
	FindOrCreateRole(ctx context.Context, r *Role) (id string, created bool, err error)

	// EnsureRoleAssignment grants roleID to userID; no-op when already
	// granted. Reports whether the grant was newly written.
	EnsureRoleAssignment(ctx context.Context, userID, roleID string) (created bool, err error)

	// EnsureTenantUserLink creates the tenant-user join row unless one
	// already exists for the pair. The link's preferred role and title
	// codes are resolved against the active catalogs, substituting the
	// documented fallback codes when the preferred ones are not active;
	// the resolved codes are written back into link. Reports whether a
	// row was created.
	EnsureTenantUserLink(ctx context.Context, link *TenantUserLink) (id string, created bool, err error)

	// EnsureDefaultWorkspace creates the tenant's default workspace when
	// it has none. Reports whether a row was created.
	EnsureDefaultWorkspace(ctx context.Context, ws *Workspace) (id string, created bool, err error)

	// UpdateTenantAdminReference points the tenant at its first admin user
	// and stamps the admin-generated flag. Unconditional, safe to repeat.
	UpdateTenantAdminReference(ctx context.Context, tenantID, userID string, at time.Time) error

	// UpdateTenantDefaultWorkspace points the tenant at its default
	// workspace. Unconditional, safe to repeat.
	UpdateTenantDefaultWorkspace(ctx context.Context, tenantID, workspaceID string) error

	// CodeActive reports whether code is present and active in the given
	// catalog.
	CodeActive(ctx context.Context, kind CatalogKind, code string) (bool, error)
}

// TxRunner executes fn against a Repository bound to a single transaction.
// Any error from fn rolls the transaction back; a nil return commits it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(Repository) error) error
}
