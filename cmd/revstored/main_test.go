package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/revstore/revstore"
	"github.com/revstore/revstore/internal/testenv"
	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/remote"
	"github.com/revstore/revstore/pkg/remote/gws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Setenv(revstore.EnvRepository, "fromenv")
	t.Setenv(revstore.EnvAdmins, "root")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, models.ID("fromenv"), cfg.Repository)
	assert.Equal(t, []models.ID{"root"}, cfg.Admins)
	assert.Equal(t, revstore.DefaultListen, cfg.Listen)

	cfg, err = Parse([]string{"-repository", "notes", "-listen", ":9000", "-admins", "a, b", "-access-control", "-base-revision", "7"})
	require.NoError(t, err)
	assert.Equal(t, models.ID("notes"), cfg.Repository)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, []models.ID{"a", "b"}, cfg.Admins)
	assert.True(t, cfg.AccessControl)
	assert.Equal(t, int64(7), cfg.BaseRevision)

	_, err = Parse([]string{"-repository", "bad id"})
	assert.Error(t, err)
	_, err = Parse([]string{"serve"})
	assert.ErrorContains(t, err, "unexpected arguments")
	_, err = Parse([]string{"-base-revision", "-1"})
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := revstore.NewConfig("repo")
	log := testenv.NewLogger()
	cfg.Logger = log
	repo, err := revstore.Open(ctx, cfg)
	require.NoError(t, err)
	defer repo.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, repo, lis) }()

	base := "http://" + lis.Addr().String()
	res, err := http.Get(base + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok\n", string(body))
	assert.True(t, log.Contains("INFO: serving"), log.Lines())

	rcfg := remote.NewConfig("ws://"+lis.Addr().String(), "alice")
	rcfg.Timeout = 5 * time.Second
	conn, err := gws.New(rcfg)
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx))
	client := remote.NewClient(conn, rcfg)
	r, err := client.Execute(ctx, "alice", change.Must(change.NewAdd(repo.Address().Child("m"), change.Safe)))
	require.NoError(t, err)
	assert.Equal(t, int64(0), r)
	require.NoError(t, client.Close(ctx))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.True(t, log.Contains("shutting down"))
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
