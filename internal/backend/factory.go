// Package backend picks the tracker transport named by configuration.
package backend

import (
	"fmt"
	"time"

	"github.com/cexll/issuedesk/internal/transport"
	"github.com/cexll/issuedesk/internal/transport/github"
	"github.com/cexll/issuedesk/internal/transport/rest"
)

// Config contains transport configuration
type Config struct {
	// Name of the backend: "rest" or "github"
	Name    string
	Timeout time.Duration

	// rest configuration
	BaseURL string

	// github configuration
	GitHubToken string
	GitHubOwner string
	GitHubRepo  string
}

// New creates a transport based on configuration
func New(cfg *Config) (transport.Transport, error) {
	switch cfg.Name {
	case "rest", "":
		return rest.NewClient(cfg.BaseURL, cfg.Timeout), nil

	case "github":
		if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
			return nil, fmt.Errorf("github: GITHUB_OWNER and GITHUB_REPO are required")
		}
		return github.NewWithToken(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo, cfg.Timeout), nil

	default:
		return nil, fmt.Errorf("unknown transport: %s (supported: rest, github)", cfg.Name)
	}
}
