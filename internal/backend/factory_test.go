package backend

import (
	"strings"
	"testing"

	"github.com/cexll/issuedesk/internal/transport/github"
	"github.com/cexll/issuedesk/internal/transport/rest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *Config
		wantErr     bool
		errContains string
		check       func(t *testing.T, v any)
	}{
		{
			name: "rest backend",
			cfg:  &Config{Name: "rest", BaseURL: "http://localhost:9000"},
			check: func(t *testing.T, v any) {
				if _, ok := v.(*rest.Client); !ok {
					t.Fatalf("got %T, want *rest.Client", v)
				}
			},
		},
		{
			name: "empty name defaults to rest",
			cfg:  &Config{},
			check: func(t *testing.T, v any) {
				if _, ok := v.(*rest.Client); !ok {
					t.Fatalf("got %T, want *rest.Client", v)
				}
			},
		},
		{
			name: "github backend",
			cfg:  &Config{Name: "github", GitHubToken: "tok", GitHubOwner: "o", GitHubRepo: "r"},
			check: func(t *testing.T, v any) {
				if _, ok := v.(*github.Transport); !ok {
					t.Fatalf("got %T, want *github.Transport", v)
				}
			},
		},
		{
			name:        "github backend missing repo",
			cfg:         &Config{Name: "github", GitHubOwner: "o"},
			wantErr:     true,
			errContains: "GITHUB_OWNER and GITHUB_REPO are required",
		},
		{
			name:        "unknown backend",
			cfg:         &Config{Name: "gitlab"},
			wantErr:     true,
			errContains: "unknown transport: gitlab (supported: rest, github)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error = %q, want to contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			tt.check(t, got)
		})
	}
}
