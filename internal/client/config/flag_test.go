package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected  *Config
		name      string
		args      []string
		expectErr bool
	}{
		{
			name: "Test1 OK",
			args: []string{"-a", "127.0.0.1:9090", "-i", "10", "-t", "5s"},
			expected: &Config{
				ServerEndpointAddr:  "127.0.0.1:9090",
				RequestTimeout:      5 * time.Second,
				OnlineCheckInterval: 10 * time.Second,
			},
		},
		{
			name:      "Test2 incorrect check interval",
			args:      []string{"-a", "127.0.0.1:9090", "-i", "abc"},
			expectErr: true,
		},
		{
			name:      "Test3 incorrect timeout",
			args:      []string{"-t", "soon"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			err := parseFlags(config, tt.args)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(config, tt.expected))
		})
	}
}
