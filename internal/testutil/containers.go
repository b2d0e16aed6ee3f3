// Package testutil starts the containers used by the integration and e2e
// suites.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgImage      = "pgvector/pgvector:0.8.1-pg18"
	pgCredential = "policyqa"
	rustFSImage  = "rustfs/rustfs:latest"
	rustFSKey    = "rustfsadmin"
)

// Container is a started test container reachable at Addr.
type Container struct {
	testcontainers.Container
	Addr string
}

// Terminate stops and removes the container.
func (c *Container) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(c.Container)
}

// PostgresContainer is a pgvector-enabled PostgreSQL server.
type PostgresContainer struct{ Container }

// RustFSContainer is an S3-compatible RustFS server.
type RustFSContainer struct{ Container }

func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port nat.Port) Container {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}

	endpoint, err := c.PortEndpoint(ctx, port, "")
	if err != nil {
		t.Fatalf("resolve %s endpoint: %v", req.Image, err)
	}
	return Container{Container: c, Addr: endpoint}
}

// NewPostgresContainer starts PostgreSQL with the pgvector extension
// available.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	return &PostgresContainer{start(ctx, t, testcontainers.ContainerRequest{
		Image:        pgImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgCredential,
			"POSTGRES_PASSWORD": pgCredential,
			"POSTGRES_DB":       pgCredential,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")}
}

// ConnectionString returns the DATABASE_URL of the container.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%[1]s:%[1]s@%s/%[1]s?sslmode=disable", pgCredential, pc.Addr)
}

// NewRustFSContainer starts RustFS with the default admin credentials.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	return &RustFSContainer{start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustFSImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": rustFSKey,
			"RUSTFS_SECRET_KEY": rustFSKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000/tcp")}
}

// Endpoint returns the S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return "http://" + rc.Addr
}

// NewTestPool applies the up migrations in migrationsDir and returns a
// pool on the migrated database. The pool is closed on test cleanup.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	if err := migrateUp(pc.ConnectionString(), migrationsDir); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var (
		pool *pgxpool.Pool
		err  error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		if pool, err = pgxpool.New(ctx, pc.ConnectionString()); err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("connect to %s: %v", pc.Addr, err)
	}

	t.Cleanup(pool.Close)
	return pool
}

func migrateUp(databaseURL, migrationsDir string) error {
	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
