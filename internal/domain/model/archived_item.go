// Пакет model — доменные модели Archive Module.
// ArchivedItem — маппинг таблицы archived_item.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// ArchivedItem — запись об одном заархивированном файле.
// Создаётся один раз на каждую отправку; после вставки меняется только флаг Deleted.
type ArchivedItem struct {
	// ID — UUID записи
	ID string
	// DisplayName — имя файла, видимое отправителю
	DisplayName string
	// StorageURL — публичный URL (или локальный путь) размещённого файла
	StorageURL string
	// ObjectKey — ключ объекта в удалённом хранилище (пусто при локальном размещении)
	ObjectKey string
	// ArchivedAt — время отправки
	ArchivedAt time.Time
	// SubmitterID — идентификатор отправителя
	SubmitterID int64
	// SubmitterName — отображаемое имя отправителя
	SubmitterName string
	// ContextID — группа, из которой пришёл файл
	ContextID int64
	// Size — размер исходного файла в байтах
	Size int64
	// FileType — расширение файла в нижнем регистре без точки
	FileType string
	// ContentHash — MD5 содержимого (hex)
	ContentHash string
	// Identities — кандидатные идентичности, выведенные из MD5 содержимого
	// (подсказка платформы участвует только в поиске дубликата)
	Identities []string
	// OriginURL — ссылка, по которой файл был получен
	OriginURL string
	// Duplicate — совпадение по содержимому существовало на момент отправки
	Duplicate bool
	// Deleted — мягкое удаление
	Deleted bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// SubmitterCount — количество архивированных файлов одного отправителя.
type SubmitterCount struct {
	SubmitterID   int64
	SubmitterName string
	Count         int
}

// FileTypeOf возвращает расширение имени файла в нижнем регистре без точки.
func FileTypeOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Match — краткое описание найденного файла (результат поиска).
// Сериализуется в result запроса.
type Match struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	URL         string    `json:"archiveUrl"`
	SubmitterID int64     `json:"senderId,omitempty"`
	ArchivedAt  time.Time `json:"archiveDate"`
}

// MatchOf строит Match из записи архива.
func MatchOf(item *ArchivedItem) Match {
	return Match{
		ID:          item.ID,
		Name:        item.DisplayName,
		URL:         item.StorageURL,
		SubmitterID: item.SubmitterID,
		ArchivedAt:  item.ArchivedAt,
	}
}
