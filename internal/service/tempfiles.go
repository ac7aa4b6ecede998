package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TempSet — временные файлы одного конвейера.
// Cleanup удаляет всё добавленное, кроме путей, отмеченных Retain,
// и каталогов, внутри которых лежит сохраняемый путь.
type TempSet struct {
	mu       sync.Mutex
	paths    []string
	retained map[string]bool
	logger   *slog.Logger
}

// NewTempSet создаёт пустой набор.
func NewTempSet(logger *slog.Logger) *TempSet {
	return &TempSet{retained: make(map[string]bool), logger: logger}
}

// Add добавляет пути в набор. Пустые строки игнорируются.
func (t *TempSet) Add(paths ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range paths {
		if p == "" {
			continue
		}
		t.paths = append(t.paths, filepath.Clean(p))
	}
}

// Retain исключает путь из удаления.
func (t *TempSet) Retain(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retained[filepath.Clean(path)] = true
}

// Cleanup удаляет файлы и каталоги набора в обратном порядке добавления.
// Ошибки удаления логируются.
func (t *TempSet) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool, len(t.paths))
	for i := len(t.paths) - 1; i >= 0; i-- {
		p := t.paths[i]
		if seen[p] || t.isRetained(p) {
			continue
		}
		seen[p] = true
		if err := os.RemoveAll(p); err != nil {
			t.logger.Warn("Не удалось удалить временный файл",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}
	t.paths = nil
}

func (t *TempSet) isRetained(p string) bool {
	if t.retained[p] {
		return true
	}
	prefix := p + string(filepath.Separator)
	for r := range t.retained {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}
