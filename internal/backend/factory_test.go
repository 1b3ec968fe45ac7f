package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"revenue/internal/config"
	"revenue/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Config
		want    BackendType
		wantErr bool
	}{
		{"nil config", nil, "", true},
		{"memory", &config.Config{DataBackend: "memory"}, MemoryBackend, false},
		{"mongo", &config.Config{DataBackend: "mongo", MongoURI: "mongodb://x", MongoDatabase: "db"}, MongoBackend, false},
		{"unknown", &config.Config{DataBackend: "sheets"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAppConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromAppConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Type != tt.want {
				t.Errorf("FromAppConfig() type = %v, want %v", got.Type, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"mongo without uri", Config{Type: MongoBackend, MongoDatabase: "db"}, true},
		{"mongo without database", Config{Type: MongoBackend, MongoURI: "mongodb://x"}, true},
		{"invalid type", Config{Type: "postgres"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInvalidTypeListsSupportedBackends(t *testing.T) {
	err := Config{Type: "postgres"}.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, bt := range GetBackendTypes() {
		if !strings.Contains(err.Error(), string(bt)) {
			t.Errorf("error %q does not mention %q", err, bt)
		}
	}
}

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	factory := NewFactory(nil)

	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "revenue.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			result, err := factory.CreateStore(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateStore() error = %v", err)
			}
			defer result.Cleanup()

			e, err := result.Store.Insert(ctx, core.Entry{
				Kind: core.Income, OwnerID: "u1", Amount: core.Money{Cents: 100}, Description: "salary", Date: "2024-01-05",
			})
			if err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			if e.ID == "" {
				t.Error("Insert() returned an empty id")
			}
		})
	}

	if _, err := factory.CreateStore(ctx, Config{Type: "bogus"}); err == nil {
		t.Error("CreateStore() with invalid type: error = nil")
	}
}
