package identity

import (
	"os"
	"path/filepath"
	"testing"

	"tg_zulip_bridge/internal/bridge/models"
)

func TestResolve(t *testing.T) {
	resolver := NewWithMapping(map[string]string{
		"alice":     "Alice Wonder",
		"784233650": "Bob Builder",
	})

	tests := []struct {
		name   string
		sender models.Sender
		want   string
	}{
		{
			name:   "handle mapped",
			sender: models.Sender{ID: 1, Username: "alice", FirstName: "Alice"},
			want:   "@_**Alice Wonder**",
		},
		{
			name:   "numeric id mapped without handle",
			sender: models.Sender{ID: 784233650, FirstName: "Bob"},
			want:   "@_**Bob Builder**",
		},
		{
			name:   "miss degrades to full name",
			sender: models.Sender{ID: 2, Username: "charlie", FirstName: "Charlie", LastName: "Chaplin"},
			want:   "Charlie Chaplin",
		},
		{
			name:   "miss with first name only",
			sender: models.Sender{ID: 3, FirstName: "Dora"},
			want:   "Dora",
		},
		{
			name:   "handle takes precedence over id",
			sender: models.Sender{ID: 784233650, Username: "alice"},
			want:   "@_**Alice Wonder**",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolver.Resolve(tt.sender)
			if got != tt.want {
				t.Fatalf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zulip_users.json")
	content := `{"alice": "Alice Wonder", "123": "Eve Online"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write mapping file: %v", err)
	}

	resolver, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if resolver.Size() != 2 {
		t.Fatalf("unexpected mapping size: %d", resolver.Size())
	}
	if name, ok := resolver.LookupHandle("alice"); !ok || name != "Alice Wonder" {
		t.Fatalf("unexpected handle lookup: %q %v", name, ok)
	}
	if name, ok := resolver.LookupID(123); !ok || name != "Eve Online" {
		t.Fatalf("unexpected id lookup: %q %v", name, ok)
	}
}

func TestLoadFileMissing(t *testing.T) {
	resolver, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	// 文件缺失不致命，应返回可用的空 Resolver
	if resolver == nil || resolver.Size() != 0 {
		t.Fatalf("expected empty resolver fallback, got %+v", resolver)
	}
	got := resolver.Resolve(models.Sender{ID: 9, FirstName: "Zed"})
	if got != "Zed" {
		t.Fatalf("expected plain name fallback, got %q", got)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write mapping file: %v", err)
	}

	resolver, err := LoadFile(path)
	if err == nil {
		t.Fatalf("expected error for malformed file")
	}
	if resolver == nil || resolver.Size() != 0 {
		t.Fatalf("expected empty resolver fallback, got %+v", resolver)
	}
}
