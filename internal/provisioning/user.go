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
	"strings"
	"time"
)

// User is the dual-represented admin identity. The same record is written to
// the profile table (application_users) and the verification table
// (identity_users); both rows share the identifier, password hash, security
// stamp and concurrency stamp, or the platform's profile and login views
// diverge.
type User struct {
	ID               string `json:"id"`
	UserName         string `json:"user_name"`
	Email            string `json:"email"`
	EmailConfirmed   bool   `json:"email_confirmed"`
	PasswordHash     string `json:"-"`
	SecurityStamp    string `json:"-"`
	ConcurrencyStamp string `json:"-"`

	PhoneNumberConfirmed bool `json:"phone_number_confirmed"`
	TwoFactorEnabled     bool `json:"two_factor_enabled"`
	LockoutEnabled       bool `json:"lockout_enabled"`
	AccessFailedCount    int  `json:"access_failed_count"`

	// Profile fields, present only in the application representation.
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Department string `json:"department"`
	JobTitle   string `json:"job_title"`

	IsActive           bool      `json:"is_active"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
}

// NormalizedEmail returns the email in the uppercase form the identity
// stack indexes on.
func (u *User) NormalizedEmail() string {
	return strings.ToUpper(u.Email)
}

// NormalizedUserName returns the user name in uppercase form.
func (u *User) NormalizedUserName() string {
	return strings.ToUpper(u.UserName)
}

// Role is a globally defined, name-keyed role, created lazily.
type Role struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	NormalizedName   string `json:"normalized_name"`
	ConcurrencyStamp string `json:"-"`
}

// RoleAdmin is the role granted to the first tenant administrator.
const RoleAdmin = "Admin"
