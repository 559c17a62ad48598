package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , https://b.example,")

	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatal("ServerPort is empty")
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins); diff != "" {
		t.Errorf("AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
}

func TestDSNEscapesCredentials(t *testing.T) {
	cfg := &Config{DBUser: "chat", DBPassword: "p@ss/word", DBHost: "db", DBPort: "5432", DBName: "chatcore"}
	got := cfg.DSN()
	want := "postgres://chat:p%40ss%2Fword@db:5432/chatcore?sslmode=disable"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:          "development",
			StoreBackend: "memory",
			BlobBackend:  "memory",
			AuthProvider: "jwt",
			JWTSecret:    defaultJWTSecret,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"firestore without project", func(c *Config) { c.StoreBackend = "firestore" }, "GOOGLE_CLOUD_PROJECT"},
		{"gcs without bucket", func(c *Config) { c.BlobBackend = "gcs" }, "GCS_BUCKET"},
		{"default secret in production", func(c *Config) { c.Env = "production" }, "JWT_SECRET"},
		{"unknown store", func(c *Config) { c.StoreBackend = "mongo" }, "STORE_BACKEND"},
		{"firebase with project", func(c *Config) {
			c.AuthProvider = "firebase"
			c.GoogleProject = "demo"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}
