// Package testenv provides helpers for tests that need a PostgreSQL database
// or a WebSocket connection to a revstore server.
//
// Tests against PostgreSQL run only when REVSTORE_POSTGRES_DSN is set and
// -short is not. Setting REVSTORE_CONNECTION_IMPL to "gws" makes Dial use the
// gws transport instead of gorilla/websocket.
package testenv

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/remote"
	"github.com/revstore/revstore/pkg/remote/gorillaws"
	"github.com/revstore/revstore/pkg/remote/gws"
	"github.com/stretchr/testify/require"
)

const (
	// EnvPostgresDSN is the database the PostgreSQL tests use.
	EnvPostgresDSN = "REVSTORE_POSTGRES_DSN"

	// EnvConnectionImpl selects the transport of Dial: "gws" or, by default,
	// gorilla/websocket.
	EnvConnectionImpl = "REVSTORE_CONNECTION_IMPL"

	// DialTimeout bounds every call made through a connection from Dial.
	DialTimeout = 5 * time.Second
)

// PostgresDSN returns the test database DSN or skips t.
func PostgresDSN(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	dsn := os.Getenv(EnvPostgresDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvPostgresDSN)
	}
	return dsn
}

// WebSocketURL turns the http:// URL of an httptest server into a ws:// one.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// NewConn returns an unconnected connection of the transport selected by
// REVSTORE_CONNECTION_IMPL.
func NewConn(cfg *remote.Config) (remote.Conn, error) {
	if os.Getenv(EnvConnectionImpl) == "gws" {
		return gws.New(cfg)
	}
	return gorillaws.New(cfg)
}

// Dial connects to the server at baseURL as actor. The connection is closed
// when t ends.
func Dial(t testing.TB, baseURL string, actor models.ID) *remote.Client {
	t.Helper()
	cfg := remote.NewConfig(baseURL, actor)
	cfg.Timeout = DialTimeout
	conn, err := NewConn(cfg)
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))

	client := remote.NewClient(conn, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = client.Close(ctx)
	})
	return client
}
