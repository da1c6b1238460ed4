package storage

import (
	"mime"
	"path"
	"strings"
	"unicode/utf8"
)

const maxNameBytes = 255

const DefaultContentType = "application/octet-stream"

// Meta: метаданные загруженного файла.
type Meta struct {
	Name        string
	Size        int64
	ContentType string
}

// DeriveMeta заполняет то, что не передали явно: имя из загрузки,
// тип по расширению имени. Размер берётся из фактически записанных байт.
func DeriveMeta(declaredName, uploadName, declaredType string, written int64) Meta {
	name := cleanName(declaredName)
	if name == "" {
		name = cleanName(uploadName)
	}
	ct := strings.TrimSpace(declaredType)
	if ct == "" || ct == DefaultContentType {
		if guess := mime.TypeByExtension(strings.ToLower(path.Ext(name))); guess != "" {
			ct = guess
		}
	}
	if ct == "" {
		ct = DefaultContentType
	}
	return Meta{Name: name, Size: written, ContentType: ct}
}

// cleanName оставляет только базовое имя (как у браузерных загрузок "C:\dir\a.txt").
func cleanName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	if len(base) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(base[cut]) {
			cut--
		}
		base = base[:cut]
	}
	return base
}
