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

// Package notification delivers the generated admin credential by email and,
// when transport fails, persists the full message content to a local fallback
// artifact so the credential is never lost.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shahin-grc/provisioner/internal/audit"
	"github.com/shahin-grc/provisioner/internal/observability/logger"
)

// Notification carries what the welcome email needs.
type Notification struct {
	Recipient  string
	TenantID   string
	TenantName string
	Password   string
	LoginURL   string
}

// DeliveryResult reports how the credential reached (or failed to reach) the
// recipient. Transport failure is never fatal: the caller inspects the
// result instead of receiving an error.
type DeliveryResult struct {
	Delivered    bool
	FallbackPath string
	TransportErr error
	FallbackErr  error
}

// Transport submits a composed message to a mail endpoint.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// Dispatcher composes and delivers welcome emails with file fallback.
type Dispatcher struct {
	transport    Transport
	from         string
	supportEmail string
	fallbackDir  string
	auditLogger  audit.Logger
	now          func() time.Time
}

// NewDispatcher creates a dispatcher. fallbackDir receives undeliverable
// message artifacts; it must exist and be writable.
func NewDispatcher(transport Transport, from, supportEmail, fallbackDir string, auditLogger audit.Logger) *Dispatcher {
	return &Dispatcher{
		transport:    transport,
		from:         from,
		supportEmail: supportEmail,
		fallbackDir:  fallbackDir,
		auditLogger:  auditLogger,
		now:          time.Now,
	}
}

// Notify delivers the credential exactly once per successful provisioning
// run. On transport failure the full message content is written to a
// timestamped local artifact; failure of that write is reported in the
// result but never raised.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) DeliveryResult {
	msg := ComposeWelcome(n, d.from, d.supportEmail)

	err := d.transport.Send(ctx, msg)
	if err == nil {
		slog.InfoContext(ctx, "welcome email delivered",
			logger.Email(n.Recipient),
			logger.TenantID(n.TenantID),
		)
		d.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeNotificationSent,
			TenantID: n.TenantID,
			ActorID:  audit.ActorSystem,
			Resource: audit.ResourceUser,
			Metadata: map[string]any{audit.AttrEmail: n.Recipient},
		})
		return DeliveryResult{Delivered: true}
	}

	slog.ErrorContext(ctx, "welcome email delivery failed, writing fallback artifact",
		logger.Email(n.Recipient),
		logger.TenantID(n.TenantID),
		logger.Error(err),
	)

	result := DeliveryResult{TransportErr: err}
	path, writeErr := d.writeFallback(n.TenantName, msg)
	if writeErr != nil {
		slog.ErrorContext(ctx, "fallback artifact write failed, credential only in operator output",
			logger.TenantID(n.TenantID),
			logger.Error(writeErr),
		)
		result.FallbackErr = writeErr
		return result
	}

	result.FallbackPath = path
	slog.WarnContext(ctx, "welcome email saved to fallback artifact",
		logger.TenantID(n.TenantID),
		slog.String("path", path),
	)
	d.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeNotificationFallback,
		TenantID: n.TenantID,
		ActorID:  audit.ActorSystem,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrEmail:        n.Recipient,
			audit.AttrFallbackPath: path,
		},
	})
	return result
}

// writeFallback persists the undelivered message as a human-readable file
// named from the tenant and a timestamp.
func (d *Dispatcher) writeFallback(tenantName string, msg *Message) (string, error) {
	name := fmt.Sprintf("welcome_email_%s_%s.txt",
		strings.ReplaceAll(tenantName, " ", "_"),
		d.now().Format("20060102_150405"),
	)
	path := filepath.Join(d.fallbackDir, name)

	var buf strings.Builder
	fmt.Fprintf(&buf, "TO: %s\n", msg.To)
	fmt.Fprintf(&buf, "SUBJECT: %s\n", msg.Subject)
	fmt.Fprintf(&buf, "FROM: %s\n", msg.From)
	buf.WriteString(strings.Repeat("-", 60) + "\n\n")
	buf.WriteString(msg.Text)

	if err := os.WriteFile(path, []byte(buf.String()), 0o600); err != nil {
		return "", fmt.Errorf("notification: failed to write fallback artifact: %w", err)
	}
	return path, nil
}
