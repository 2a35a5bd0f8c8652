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

import "errors"

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrUserNotFound   = errors.New("user not found")

	// ErrUserRepresentationSplit is an integrity fault: the user exists in
	// one representation but not the other. Never auto-repaired; the run
	// must abort.
	ErrUserRepresentationSplit = errors.New("user exists in only one representation")

	// ErrFallbackCodeInactive means a documented fallback catalog code is
	// missing or inactive, so link creation could mint dead codes.
	ErrFallbackCodeInactive = errors.New("fallback catalog code is not active")

	ErrInvalidRequest = errors.New("invalid provisioning request")
)
