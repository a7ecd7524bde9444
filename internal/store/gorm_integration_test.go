//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/pkg/config"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// startPostgres runs a throwaway Postgres and returns a migrated connection.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "dwiju",
				"POSTGRES_PASSWORD": "dwiju",
				"POSTGRES_DB":       "dwiju_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Database.Host = host
	cfg.Database.Port = port.Port()
	cfg.Database.User = "dwiju"
	cfg.Database.Password = "dwiju"
	cfg.Database.Name = "dwiju_test"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.ConnectRetries = 5
	cfg.Database.RetryDelay = time.Second

	db, err := config.NewDB(cfg)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(ctx, db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestGormStores(t *testing.T) {
	db := startPostgres(t)

	runStoreContract(t, func(t *testing.T) *Stores {
		for _, table := range []any{&models.Message{}, &models.Conversation{}, &models.Feature{}, &models.Account{}} {
			require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error)
		}
		return NewGormStores(db)
	})
}

func TestGormFeatureIDsUnderConcurrency(t *testing.T) {
	db := startPostgres(t)
	s := NewGormFeatureStore(db)
	ctx := context.Background()

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			errs <- s.Create(ctx, &models.Feature{
				Title:       fmt.Sprintf("Feature %d", i),
				Description: "concurrent",
				Category:    "Dwiju Teacher",
				Active:      true,
				Version:     "1.0.0",
			})
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	all, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, all, n)
	for i, f := range all {
		require.Equal(t, i+1, f.ID)
	}
}
