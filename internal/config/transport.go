package config

import (
	"github.com/cexll/issuedesk/internal/backend"
	"github.com/cexll/issuedesk/internal/transport"
)

// Backend returns the transport configuration.
func (c *Config) Backend() *backend.Config {
	return &backend.Config{
		Name:        c.Transport,
		Timeout:     c.APITimeout,
		BaseURL:     c.APIBaseURL,
		GitHubToken: c.GitHubToken,
		GitHubOwner: c.GitHubOwner,
		GitHubRepo:  c.GitHubRepo,
	}
}

// NewTransport creates the configured transport.
func (c *Config) NewTransport() (transport.Transport, error) {
	return backend.New(c.Backend())
}
