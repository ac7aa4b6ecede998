package placement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// localDirLayout — формат имени директории одного размещения.
const localDirLayout = "20060102-150405.000000000"

// maxDirAttempts — попытки подобрать свободное имя директории.
const maxDirAttempts = 16

// Local — размещение копией в локальную директорию архива.
type Local struct {
	root   string
	logger *slog.Logger
}

// NewLocal создаёт локальное хранилище, создавая корневую директорию при необходимости.
func NewLocal(root string, logger *slog.Logger) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию архива %s: %w", root, err)
	}
	return &Local{
		root:   root,
		logger: logger.With(slog.String("component", "placement_local")),
	}, nil
}

// Place копирует артефакт в <root>/<YYYYMMDD-HHMMSS.nnnnnnnnn>/<имя>.
// Директория создаётся эксклюзивно и принадлежит только этому размещению.
func (l *Local) Place(_ context.Context, a Artifact) (*Placed, error) {
	dir, err := l.makeDir(a.SubmittedAt)
	if err != nil {
		placementsTotal.WithLabelValues("local", "place", "error").Inc()
		return nil, err
	}

	dst := filepath.Join(dir, SafeName(a.DisplayName))
	if err := copyFile(a.Path, dst); err != nil {
		_ = os.RemoveAll(dir)
		placementsTotal.WithLabelValues("local", "place", "error").Inc()
		return nil, err
	}
	placementsTotal.WithLabelValues("local", "place", "success").Inc()

	l.logger.Debug("Файл размещён локально", slog.String("path", dst))
	return &Placed{URL: dst, RetainedPath: dst}, nil
}

// Remove для локального хранения ничего не делает: копия удаляется
// вместе с временными файлами конвейера.
func (l *Local) Remove(context.Context, string) error {
	return nil
}

// Remote всегда false.
func (l *Local) Remote() bool {
	return false
}

// makeDir создаёт уникальную директорию размещения. При совпадении имени
// метка времени сдвигается на наносекунду.
func (l *Local) makeDir(t time.Time) (string, error) {
	if t.IsZero() {
		t = time.Now()
	}
	for i := 0; i < maxDirAttempts; i++ {
		dir := filepath.Join(l.root, t.Format(localDirLayout))
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("создание директории %s: %w", dir, err)
		}
		t = t.Add(time.Nanosecond)
	}
	return "", fmt.Errorf("не удалось подобрать свободную директорию в %s", l.root)
}

// copyFile копирует файл через временный файл с fsync и атомарным rename.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("открытие %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}
