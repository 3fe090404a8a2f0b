// Package mcp provides an MCP (Model Context Protocol) server that lets an
// agent drive a tendril simulation.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/tendril/internal/driver"
	"github.com/nvandessel/tendril/internal/logging"
	"github.com/nvandessel/tendril/internal/ratelimit"
)

// Server wraps the MCP SDK server around a simulation driver.
type Server struct {
	server      *sdk.Server
	driver      *driver.Driver
	limits      ratelimit.Limits
	auditLogger *AuditLogger
	allowedDirs []string
	logger      *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "tendril")
	Version string // Server version
	Driver  *driver.Driver

	// AllowedDirs lists the directories tendril_load may read program files
	// from. Empty disables file loading.
	AllowedDirs []string

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with tendril tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Driver == nil {
		return nil, errors.New("mcp server requires a driver")
	}
	logger := logging.OrDiscard(cfg.Logger)

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:      mcpServer,
		driver:      cfg.Driver,
		limits:      ratelimit.NewLimits(),
		allowedDirs: cfg.AllowedDirs,
		logger:      logger,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir, logger)
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the audit log. The driver belongs to the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
