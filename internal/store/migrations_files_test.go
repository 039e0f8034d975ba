package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

var testMigrations = os.DirFS(filepath.Join("..", "..", "db", "migrations"))

func TestRepositoryMigrationsLoad(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations discovered")
	}
	for _, m := range migrations {
		if m.Up == "" || m.Down == "" {
			t.Fatalf("migration %s is missing a direction", m.Version)
		}
	}
	if !strings.Contains(migrations[0].Up, "retro_sessions") {
		t.Error("first migration should create retro_sessions")
	}
}

func TestLoadMigrations(t *testing.T) {
	tests := []struct {
		name    string
		files   fstest.MapFS
		want    []string
		wantErr string
	}{
		{
			name: "ordered pairs",
			files: fstest.MapFS{
				"0002_votes.up.sql":   {Data: []byte("CREATE TABLE b();")},
				"0002_votes.down.sql": {Data: []byte("DROP TABLE b;")},
				"0001_init.up.sql":    {Data: []byte("CREATE TABLE a();")},
				"0001_init.down.sql":  {Data: []byte("DROP TABLE a;")},
				"README.md":           {Data: []byte("ignored")},
			},
			want: []string{"0001", "0002"},
		},
		{
			name: "missing down",
			files: fstest.MapFS{
				"0001_init.up.sql": {Data: []byte("CREATE TABLE a();")},
			},
			wantErr: "needs both up and down",
		},
		{
			name: "empty down counts as missing",
			files: fstest.MapFS{
				"0001_init.up.sql":   {Data: []byte("CREATE TABLE a();")},
				"0001_init.down.sql": {Data: []byte("  \n")},
			},
			wantErr: "needs both up and down",
		},
		{
			name: "duplicate direction",
			files: fstest.MapFS{
				"0001_init.up.sql":   {Data: []byte("CREATE TABLE a();")},
				"0001_other.up.sql":  {Data: []byte("CREATE TABLE b();")},
				"0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
			},
			wantErr: "duplicate up migration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadMigrations(tt.files)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("LoadMigrations() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadMigrations() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d migrations, want %d", len(got), len(tt.want))
			}
			for i, v := range tt.want {
				if got[i].Version != v {
					t.Errorf("migration %d version = %s, want %s", i, got[i].Version, v)
				}
			}
		})
	}
}
