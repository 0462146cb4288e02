// Package handlers contains the Telegram update handlers and their
// registration table.
package handlers

import (
	"log/slog"

	"github.com/edgard/chatdigest/internal/config"
	"github.com/edgard/chatdigest/internal/database"
)

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
}
