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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeTenantCreated        = "tenant_created"
	TypeUserCreated          = "user_created"
	TypeRoleCreated          = "role_created"
	TypeRoleAssigned         = "role_assigned"
	TypeTenantUserLinked     = "tenant_user_linked"
	TypeWorkspaceCreated     = "workspace_created"
	TypeNotificationSent     = "notification_sent"
	TypeNotificationFallback = "notification_fallback"
)

// Well-known actors and resources
const (
	ActorSystem = "system"

	ResourceTenant    = "tenant"
	ResourceUser      = "user"
	ResourceRole      = "role"
	ResourceWorkspace = "workspace"
)

// Metadata attribute keys
const (
	AttrEmail        = "email"
	AttrSlug         = "slug"
	AttrTenantID     = "tenant_id"
	AttrRoleCode     = "role_code"
	AttrTitleCode    = "title_code"
	AttrWorkspaceID  = "workspace_id"
	AttrFallbackPath = "fallback_path"
)

// Event represents an auditable action
type Event struct {
	Type      string
	TenantID  string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String(AttrTenantID, event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// isSecret checks if a key likely refers to credential material. Matching is
// case-insensitive and by substring so derived keys (password_hash,
// access_token) are caught too.
func isSecret(key string) bool {
	key = strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "hash", "credential", "authorization"}
	for _, s := range secrets {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
