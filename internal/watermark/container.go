package watermark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// errNoArchiver — в системе нет утилиты для формата архива.
var errNoArchiver = errors.New("утилита архиватора не найдена")

// isTextEntry сообщает, обрабатывается ли запись архива как текст.
func isTextEntry(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".txt")
}

// watermarkZip переписывает zip-архив запись за записью: текстовые файлы
// получают водяной знак, остальные копируются как есть. Пути, методы сжатия
// и времена модификации записей сохраняются.
func watermarkZip(src, dst string, opts TextOptions) (changed int, err error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("открытие zip: %w", err)
	}
	defer zr.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("создание zip: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("закрытие zip: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	for _, f := range zr.File {
		n, err := copyZipEntry(zw, f, opts)
		if err != nil {
			return 0, fmt.Errorf("запись %s: %w", f.Name, err)
		}
		changed += n
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("финализация zip: %w", err)
	}
	return changed, nil
}

// copyZipEntry копирует одну запись, при необходимости ставя водяной знак.
// Возвращает 1, если содержимое записи изменено.
func copyZipEntry(zw *zip.Writer, f *zip.File, opts TextOptions) (int, error) {
	header := f.FileHeader
	if f.FileInfo().IsDir() {
		_, err := zw.CreateHeader(&header)
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&header)
	if err != nil {
		return 0, err
	}

	if !isTextEntry(f.Name) {
		_, err = io.Copy(w, rc)
		return 0, err
	}

	raw, err := io.ReadAll(rc)
	if err != nil {
		return 0, err
	}
	data, changed, err := WatermarkText(raw, opts)
	if err != nil {
		// Запись, которую не удалось обработать, сохраняется без изменений
		data, changed = raw, false
	}
	if _, err := w.Write(data); err != nil {
		return 0, err
	}
	if changed {
		return 1, nil
	}
	return 0, nil
}

// archiver — набор внешних команд для формата 7z или rar.
type archiver struct {
	// extract строит команду распаковки src в dir
	extract func(bin, src, dir string) []string
	// pack строит команду упаковки содержимого текущей директории в dst
	pack func(bin, dst string) []string
	// extractBins, packBins — кандидаты исполняемых файлов в порядке предпочтения
	extractBins []string
	packBins    []string
}

var archivers = map[string]archiver{
	".7z": {
		extract:     func(bin, src, dir string) []string { return []string{bin, "x", "-y", "-o" + dir, src} },
		pack:        func(bin, dst string) []string { return []string{bin, "a", "-t7z", "-y", dst, "."} },
		extractBins: []string{"7z", "7zz", "7za"},
		packBins:    []string{"7z", "7zz", "7za"},
	},
	".rar": {
		extract:     func(bin, src, dir string) []string { return []string{bin, "x", "-y", src, dir + string(os.PathSeparator)} },
		pack:        func(bin, dst string) []string { return []string{bin, "a", "-r", "-y", dst, "."} },
		extractBins: []string{"unrar", "rar"},
		packBins:    []string{"rar"},
	},
}

// watermarkArchiveCLI распаковывает 7z/rar во временную директорию scratch,
// ставит знак во все текстовые файлы и упаковывает обратно в dst.
func watermarkArchiveCLI(ctx context.Context, ext, src, dst, scratch string, opts TextOptions) (int, error) {
	a, ok := archivers[ext]
	if !ok {
		return 0, fmt.Errorf("неподдерживаемый формат архива %q", ext)
	}
	extractBin, err := lookPath(a.extractBins)
	if err != nil {
		return 0, err
	}
	packBin, err := lookPath(a.packBins)
	if err != nil {
		return 0, err
	}

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return 0, err
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return 0, err
	}

	if err := run(ctx, "", a.extract(extractBin, absSrc, scratch)); err != nil {
		return 0, fmt.Errorf("распаковка: %w", err)
	}

	changed := 0
	err = filepath.WalkDir(scratch, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isTextEntry(path) {
			return nil
		}
		ok, err := watermarkTextFile(path, path, opts)
		if err != nil {
			// Файл остаётся как есть
			return nil
		}
		if ok {
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("обход распакованного архива: %w", err)
	}

	if err := run(ctx, scratch, a.pack(packBin, absDst)); err != nil {
		return 0, fmt.Errorf("упаковка: %w", err)
	}
	return changed, nil
}

// lookPath возвращает первый найденный исполняемый файл.
func lookPath(candidates []string) (string, error) {
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", errNoArchiver, strings.Join(candidates, ", "))
}

// run выполняет внешнюю команду, возвращая ошибку с её выводом.
func run(ctx context.Context, dir string, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // аргументы формируются внутри пакета
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(args[0]), err, strings.TrimSpace(string(output)))
	}
	return nil
}
