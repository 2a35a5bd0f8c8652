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
	"strings"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahin-grc/provisioner/internal/id"
	"github.com/shahin-grc/provisioner/internal/provisioning"
)

func TestConnString(t *testing.T) {
	cfg := Config{
		Host:            "localhost",
		Port:            "5432",
		User:            "provisioner",
		Password:        "pw",
		Database:        "shahin",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	got := connString(cfg)
	assert.Contains(t, got, "pool_max_conns=25")
	assert.Contains(t, got, "pool_min_conns=5")
	assert.Contains(t, got, "pool_max_conn_lifetime=5m0s")

	// Zero means the pool default; the parameter is omitted entirely.
	cfg.ConnMaxLifetime = 0
	assert.NotContains(t, connString(cfg), "pool_max_conn_lifetime")
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tenantID := id.NewUUIDv7()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM tenants WHERE slug`).
		WithArgs("test-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(tenantID))
	mock.ExpectCommit()
	mock.ExpectRollback() // deferred rollback after commit is a no-op

	store := NewStore(mock)
	err = store.WithinTx(context.Background(), func(repo provisioning.Repository) error {
		gotID, created, err := repo.FindOrCreateTenant(context.Background(), &provisioning.Tenant{Slug: "test-1"})
		if err != nil {
			return err
		}
		assert.False(t, created)
		assert.Equal(t, tenantID, gotID)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM tenants WHERE slug`).
		WithArgs("test-1").
		WillReturnError(pgx.ErrNoRows)
	insertArgs := make([]interface{}, 20)
	for i := range insertArgs {
		insertArgs[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec(`INSERT INTO tenants`).
		WithArgs(insertArgs...).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	store := NewStore(mock)
	err = store.WithinTx(context.Background(), func(repo provisioning.Repository) error {
		_, _, err := repo.FindOrCreateTenant(context.Background(), testTenant())
		return err
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "disk full"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	store := NewStore(mock)
	err = store.WithinTx(context.Background(), func(provisioning.Repository) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
