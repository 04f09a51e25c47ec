// Package storagetest はテスト用に初期化済みの storage.Manager を用意します。
package storagetest

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/yourusername/flaskr/internal/storage"
)

// Open は t.TempDir() 上に SQLite ファイルを作成し、スキーマを初期化した Manager を返します。
// Manager はテスト終了時に閉じられます。
func Open(t testing.TB) *storage.Manager {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flaskr.sqlite")
	mgr, err := storage.Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() {
		_ = mgr.Close()
	})

	if err := mgr.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return mgr
}
