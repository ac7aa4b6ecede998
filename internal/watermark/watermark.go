// Пакет watermark — этап преобразования содержимого перед размещением.
//
// Stage.Apply выбирает преобразование по типу файла:
//   - PDF — полупрозрачный повёрнутый текст на каждой странице;
//   - .txt — строки водяного знака на случайных пустых строках и в конце;
//   - .zip / .7z / .rar — водяной знак во всех вложенных текстовых файлах
//     с упаковкой в исходный формат.
//
// Преобразование выполняется по принципу best-effort: любая ошибка
// логируется и превращается в pass-through (исходный файл без изменений).
package watermark

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики водяных знаков.
var (
	transformsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ar_watermark_transforms_total",
		Help: "Количество преобразований по типу файла и результату.",
	}, []string{"kind", "result"})
	transformDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ar_watermark_duration_seconds",
		Help:    "Длительность наложения водяного знака.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"kind"})
)

// Kind — тип преобразования.
type Kind string

const (
	KindNone Kind = "none"
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
	KindZip  Kind = "zip"
	Kind7z   Kind = "7z"
	KindRar  Kind = "rar"
)

// KindOf определяет тип преобразования по расширению файла.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".txt":
		return KindText
	case ".zip":
		return KindZip
	case ".7z":
		return Kind7z
	case ".rar":
		return KindRar
	default:
		return KindNone
	}
}

// Options — параметры этапа преобразования.
type Options struct {
	// Enabled — глобальное включение водяных знаков
	Enabled bool
	// Text — текст знака; пусто — фраза из встроенного набора
	Text string
	// TextTimes — количество вставок в текстовый файл
	TextTimes int
}

// Result — результат преобразования.
type Result struct {
	// Path — путь к итоговому артефакту (исходный файл при pass-through)
	Path string
	// Transformed — был ли создан производный артефакт
	Transformed bool
	// Kind — применённый тип преобразования
	Kind Kind
	// TempFiles — временные файлы и директории, которые нужно удалить
	TempFiles []string
}

// Stage — этап наложения водяных знаков.
type Stage struct {
	opts   Options
	logger *slog.Logger

	mu  sync.Mutex // защита rng
	rng *rand.Rand
}

// NewStage создаёт этап преобразования.
func NewStage(opts Options, logger *slog.Logger) *Stage {
	if opts.TextTimes < 1 {
		opts.TextTimes = 3
	}
	seed := uint64(time.Now().UnixNano())
	return &Stage{
		opts:   opts,
		logger: logger.With(slog.String("component", "watermark")),
		rng:    rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// Enabled сообщает, включены ли водяные знаки.
func (s *Stage) Enabled() bool {
	return s.opts.Enabled
}

// Apply применяет преобразование к файлу src.
// Никогда не возвращает ошибку: при сбое результат — исходный файл.
// Временные файлы неудачной попытки возвращаются в Result.TempFiles.
func (s *Stage) Apply(ctx context.Context, src string) Result {
	kind := KindOf(src)
	passThrough := Result{Path: src, Kind: KindNone}
	if !s.opts.Enabled || kind == KindNone {
		return passThrough
	}

	start := time.Now()
	dst := OutputPath(src)
	temps := []string{dst}

	var err error
	changed := true
	textOpts := s.textOptions()

	switch kind {
	case KindPDF:
		err = watermarkPDF(src, dst, s.pdfText())
	case KindText:
		changed, err = watermarkTextFile(src, dst, textOpts)
	case KindZip:
		var n int
		n, err = watermarkZip(src, dst, textOpts)
		changed = n > 0
	case Kind7z, KindRar:
		var scratch string
		scratch, err = os.MkdirTemp(filepath.Dir(src), ".wm-scratch-*")
		if err == nil {
			temps = append(temps, scratch)
			var n int
			n, err = watermarkArchiveCLI(ctx, filepath.Ext(strings.ToLower(src)), src, dst, scratch, textOpts)
			changed = n > 0
		}
	}

	transformDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		transformsTotal.WithLabelValues(string(kind), "failed").Inc()
		s.logger.Warn("Водяной знак не наложен, используется исходный файл",
			slog.String("file", filepath.Base(src)),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		passThrough.TempFiles = temps
		return passThrough
	}

	if !changed {
		transformsTotal.WithLabelValues(string(kind), "unchanged").Inc()
		passThrough.TempFiles = temps
		return passThrough
	}

	transformsTotal.WithLabelValues(string(kind), "applied").Inc()
	s.logger.Debug("Водяной знак наложен",
		slog.String("file", filepath.Base(src)),
		slog.String("kind", string(kind)),
		slog.Duration("duration", time.Since(start)),
	)
	return Result{Path: dst, Transformed: true, Kind: kind, TempFiles: temps}
}

// OutputPath возвращает путь производного артефакта: <stem>.wm<ext> рядом с исходным.
func OutputPath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + ".wm" + ext
}

func (s *Stage) textOptions() TextOptions {
	s.mu.Lock()
	seed := s.rng.Uint64()
	s.mu.Unlock()
	return TextOptions{
		Text:  s.opts.Text,
		Times: s.opts.TextTimes,
		Rand:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Stage) pdfText() string {
	if s.opts.Text != "" {
		return s.opts.Text
	}
	return pdfDefaultText
}
