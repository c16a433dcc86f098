package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/revstore/revstore"
	"github.com/revstore/revstore/pkg/constants"
)

const shutdownTimeout = 5 * time.Second

// Main parses args, opens the repository and serves it until ctx is done.
func Main(ctx context.Context, args []string) error {
	cfg, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	repo, err := revstore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer repo.Close()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	return Serve(ctx, repo, lis)
}

// NewRouter routes the protocol endpoint and the health check.
func NewRouter(repo *revstore.Repository) *mux.Router {
	router := mux.NewRouter()
	router.Handle(constants.RPCPath, repo.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return router
}

// Serve serves repo on lis until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, repo *revstore.Repository, lis net.Listener) error {
	server := &http.Server{
		Handler:           NewRouter(repo),
		ReadHeaderTimeout: 10 * time.Second,
	}

	repo.Logger().Info("serving", "address", lis.Addr().String(), "repository", repo.Address())
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		repo.Logger().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
