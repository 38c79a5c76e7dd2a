package db

import (
	"testing"
	"time"
)

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		opts     PoolOptions
		maxConns int32
		minConns int32
		appName  string
	}{
		{
			name:     "options applied",
			url:      "postgres://u:p@localhost:5432/ward",
			opts:     PoolOptions{MaxConns: 20, MinConns: 2, MaxConnIdleTime: time.Minute},
			maxConns: 20,
			minConns: 2,
			appName:  "wardwatch",
		},
		{
			name:     "min clamped to max",
			url:      "postgres://u:p@localhost:5432/ward",
			opts:     PoolOptions{MaxConns: 3, MinConns: 10},
			maxConns: 3,
			minConns: 3,
			appName:  "wardwatch",
		},
		{
			name:     "url application name kept",
			url:      "postgres://u:p@localhost:5432/ward?application_name=ops",
			opts:     PoolOptions{MaxConns: 5},
			maxConns: 5,
			appName:  "ops",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := poolConfig(tt.url, tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.MaxConns != tt.maxConns {
				t.Errorf("expected max %d, got %d", tt.maxConns, cfg.MaxConns)
			}
			if cfg.MinConns != tt.minConns {
				t.Errorf("expected min %d, got %d", tt.minConns, cfg.MinConns)
			}
			params := cfg.ConnConfig.RuntimeParams
			if params["timezone"] != "UTC" {
				t.Errorf("expected UTC session timezone, got %q", params["timezone"])
			}
			if params["application_name"] != tt.appName {
				t.Errorf("expected application_name %q, got %q", tt.appName, params["application_name"])
			}
		})
	}
}

func TestPoolConfig_InvalidURL(t *testing.T) {
	if _, err := poolConfig("postgres://%zz", PoolOptions{}); err == nil {
		t.Error("expected error for malformed url")
	}
}
