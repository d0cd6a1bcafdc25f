package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND", "Memory")
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MEDIA_BUCKETS", " covers, ,images ")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, AuthDev, cfg.AuthMode)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, []string{"covers", "images"}, cfg.MediaBuckets)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"jwt without secret", Config{Backend: BackendPostgres, AuthMode: AuthJWT}, "JWT_SECRET is required"},
		{"unknown backend", Config{Backend: "mongo", AuthMode: AuthDev}, `unknown BACKEND "mongo"`},
		{"unknown auth", Config{Backend: BackendMemory, AuthMode: "basic"}, `unknown AUTH_MODE "basic"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.cfg.Validate(), tt.want)
		})
	}

	ok := Config{Backend: BackendPostgres, AuthMode: AuthJWT, JWTSecret: "s"}
	assert.NoError(t, ok.Validate())
}
