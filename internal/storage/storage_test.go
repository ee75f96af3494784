package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	ctx := context.Background()

	sqliteKV, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqliteKV.Close() })

	fsKV, err := NewFS(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	mr := miniredis.RunT(t)
	redisKV, err := NewRedis(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { redisKV.Close() })

	return map[string]KV{
		DriverSQLite: sqliteKV,
		DriverFS:     fsKV,
		DriverRedis:  redisKV,
	}
}

func TestKV_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := kv.Get(ctx, "editor-theme"); err != nil || ok {
				t.Fatalf("Get absent: ok=%v err=%v", ok, err)
			}
			if err := kv.Set(ctx, "editor-theme", "dark"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := kv.Set(ctx, "editor-theme", "light"); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			v, ok, err := kv.Get(ctx, "editor-theme")
			if err != nil || !ok || v != "light" {
				t.Fatalf("Get = %q ok=%v err=%v", v, ok, err)
			}
			if err := kv.Delete(ctx, "editor-theme"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := kv.Get(ctx, "editor-theme"); ok {
				t.Error("key still present after delete")
			}
			if err := kv.Delete(ctx, "editor-theme"); err != nil {
				t.Errorf("Delete absent: %v", err)
			}
		})
	}
}

func TestKV_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"", "../escape", "a/b", ".hidden"} {
				if err := kv.Set(ctx, k, "x"); err == nil {
					t.Errorf("Set(%q) should fail", k)
				}
			}
		})
	}
}

func TestFS_NoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := kv.Set(context.Background(), "editor-pages", "{}"); err != nil {
			t.Fatal(err)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".pagebook-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "pagebook-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "etcd"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
