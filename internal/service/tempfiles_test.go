package service

import (
	"os"
	"path/filepath"
	"testing"
)

// TestTempSet_CleanupKeepsRetained проверяет, что удержанные пути не удаляются.
func TestTempSet_CleanupKeepsRetained(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	wm := filepath.Join(root, "src.wm.txt")
	placedDir := filepath.Join(root, "placed")
	placedFile := filepath.Join(placedDir, "book.txt")

	for _, p := range []string{src, wm} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(placedDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(placedFile, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	ts := NewTempSet(testLogger())
	ts.Add(src, "", wm, placedDir)
	ts.Retain(placedFile)
	ts.Cleanup()

	if fileExists(src) || fileExists(wm) {
		t.Error("временные файлы должны быть удалены")
	}
	if !fileExists(placedFile) {
		t.Error("каталог с сохраняемым файлом не должен удаляться")
	}
}

// TestTempSet_CleanupWithoutRetain проверяет удаление всех временных путей.
func TestTempSet_CleanupWithoutRetain(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "placed")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}

	ts := NewTempSet(testLogger())
	ts.Add(dir, dir)
	ts.Cleanup()

	if fileExists(dir) {
		t.Error("каталог должен быть удалён")
	}
	// повторный вызов безопасен
	ts.Cleanup()
}
