package storage

import (
	"context"
	"testing"
)

func TestSetGetTenant(t *testing.T) {
	ctx := context.Background()

	if got := GetTenant(ctx); got != "" {
		t.Errorf("GetTenant(empty ctx) = %q, want %q", got, "")
	}

	ctx = SetTenant(ctx, "tenant-abc")
	if got := GetTenant(ctx); got != "tenant-abc" {
		t.Errorf("GetTenant = %q, want %q", got, "tenant-abc")
	}

	ctx = SetTenant(ctx, "tenant-xyz")
	if got := GetTenant(ctx); got != "tenant-xyz" {
		t.Errorf("GetTenant = %q, want %q", got, "tenant-xyz")
	}
}

func TestGetTenant_NoCollision(t *testing.T) {
	ctx := context.WithValue(context.Background(), "tenant", "wrong")
	if got := GetTenant(ctx); got != "" {
		t.Errorf("GetTenant should not match string key, got %q", got)
	}
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		owner  string
		want   bool
	}{
		{"single tenant mode sees everything", "", "acme", true},
		{"owner sees own conversation", "acme", "acme", true},
		{"other tenant is hidden", "globex", "acme", false},
		{"tenant sees unowned conversation only as its owner", "acme", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.tenant != "" {
				ctx = SetTenant(ctx, tt.tenant)
			}
			if got := Visible(ctx, tt.owner); got != tt.want {
				t.Errorf("Visible = %v, want %v", got, tt.want)
			}
		})
	}
}
