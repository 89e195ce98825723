package db

import (
	"testing"

	"github.com/infinity-finance/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.PostgresConfig
		want    string
		wantErr bool
	}{
		{
			name: "database url wins",
			cfg:  config.PostgresConfig{DatabaseURL: "postgres://u:p@db:5432/finance", User: "ignored"},
			want: "postgres://u:p@db:5432/finance",
		},
		{
			name: "from parts",
			cfg:  config.PostgresConfig{Host: "db", Port: "6543", User: "app", Password: "s3cret", Database: "finance", SSLMode: "require"},
			want: "postgres://app:s3cret@db:6543/finance?sslmode=require",
		},
		{
			name: "defaults without password",
			cfg:  config.PostgresConfig{User: "app", Database: "finance"},
			want: "postgres://app@localhost:5432/finance?sslmode=disable",
		},
		{
			name:    "missing user",
			cfg:     config.PostgresConfig{Database: "finance"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPostgresURL(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
