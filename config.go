package revstore

import (
	"fmt"
	"strconv"

	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/logger"
	"github.com/revstore/revstore/pkg/models"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvRepository    = "REVSTORE_REPOSITORY"
	EnvPostgresDSN   = "REVSTORE_POSTGRES_DSN"
	EnvLogPath       = "REVSTORE_LOG_PATH"
	EnvBaseRevision  = "REVSTORE_BASE_REVISION"
	EnvListen        = "REVSTORE_LISTEN"
	EnvAccessControl = "REVSTORE_ACCESS_CONTROL"
	EnvAdmins        = "REVSTORE_ADMINS"
)

const (
	DefaultRepository = "repo"
	DefaultListen     = ":8000"
)

// Config selects the backend of a Repository and how it is served.
type Config struct {
	Repository models.ID

	// PostgresDSN selects the PostgreSQL store. Empty keeps everything in
	// memory.
	PostgresDSN string

	// BaseRevision is the revision the first event of every model gets.
	BaseRevision int64

	// LogPath appends logs to a file instead of stderr. Ignored when Logger
	// is set.
	LogPath string
	Logger  logger.Logger

	// Listen is the address cmd/revstored serves on.
	Listen string

	// AccessControl filters the served store through the access rights of
	// the connecting actor. Admins are granted read and write access to the
	// whole repository.
	AccessControl bool
	Admins        []models.ID
}

func NewConfig(repository models.ID) *Config {
	return &Config{
		Repository: repository,
		Listen:     DefaultListen,
	}
}

// ConfigFromEnv reads a Config from the REVSTORE_* variables.
func ConfigFromEnv() (*Config, error) {
	repo, err := models.NewID(GetEnvOrDefault(EnvRepository, DefaultRepository))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvRepository, err)
	}
	cfg := NewConfig(repo)
	cfg.PostgresDSN = GetEnvOrDefault(EnvPostgresDSN, "")
	cfg.LogPath = GetEnvOrDefault(EnvLogPath, "")
	cfg.Listen = GetEnvOrDefault(EnvListen, DefaultListen)

	cfg.BaseRevision, err = strconv.ParseInt(GetEnvOrDefault(EnvBaseRevision, "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvBaseRevision, err)
	}
	cfg.AccessControl, err = strconv.ParseBool(GetEnvOrDefault(EnvAccessControl, "false"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvAccessControl, err)
	}
	for _, s := range getEnvList(EnvAdmins) {
		id, err := models.NewID(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvAdmins, err)
		}
		cfg.Admins = append(cfg.Admins, id)
	}
	return cfg, nil
}

// Validate reports configuration errors that Open would otherwise run into.
func (c *Config) Validate() error {
	if !models.ValidID(string(c.Repository)) {
		return fmt.Errorf("%w: repository %q", constants.ErrInvalidID, c.Repository)
	}
	if c.BaseRevision < 0 {
		return fmt.Errorf("%w: base revision %d is negative", constants.ErrInvalidValue, c.BaseRevision)
	}
	return nil
}
