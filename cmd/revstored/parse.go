package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/revstore/revstore"
	"github.com/revstore/revstore/pkg/models"
)

// Parse applies the command line flags on top of the environment
// configuration.
func Parse(args []string) (*revstore.Config, error) {
	cfg, err := revstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	flagSet := flag.NewFlagSet("revstored", flag.ContinueOnError)
	var (
		repository    = flagSet.String("repository", string(cfg.Repository), "Repository to serve")
		listen        = flagSet.String("listen", cfg.Listen, "Address to listen on")
		postgresDSN   = flagSet.String("postgres", cfg.PostgresDSN, "PostgreSQL DSN; empty keeps the repository in memory")
		logPath       = flagSet.String("log", cfg.LogPath, "Append logs to this file instead of stderr")
		baseRevision  = flagSet.Int64("base-revision", cfg.BaseRevision, "Revision of the first event of every model")
		accessControl = flagSet.Bool("access-control", cfg.AccessControl, "Filter every connection through its actor's access rights")
		admins        = flagSet.String("admins", joinIDs(cfg.Admins), "Comma separated actors with full access")
	)
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))
	}

	cfg.Repository, err = models.NewID(*repository)
	if err != nil {
		return nil, fmt.Errorf("invalid repository: %w", err)
	}
	cfg.Listen = *listen
	cfg.PostgresDSN = *postgresDSN
	cfg.LogPath = *logPath
	cfg.BaseRevision = *baseRevision
	cfg.AccessControl = *accessControl

	cfg.Admins = nil
	for _, s := range strings.Split(*admins, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := models.NewID(s)
		if err != nil {
			return nil, fmt.Errorf("invalid admin: %w", err)
		}
		cfg.Admins = append(cfg.Admins, id)
	}
	return cfg, cfg.Validate()
}

func joinIDs(ids []models.ID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return strings.Join(s, ",")
}
