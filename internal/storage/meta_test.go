package storage

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDeriveMeta(t *testing.T) {
	tests := []struct {
		name         string
		declaredName string
		uploadName   string
		declaredType string
		wantName     string
		wantPrefix   string
	}{
		{"from upload, type by extension", "", "note.txt", "", "note.txt", "text/plain"},
		{"declared name wins", "report.pdf", "blob.bin", "", "report.pdf", "application/pdf"},
		{"declared type kept", "", "photo.jpg", "image/webp", "photo.jpg", "image/webp"},
		{"octet-stream is treated as absent", "", "page.html", DefaultContentType, "page.html", "text/html"},
		{"windows path stripped", "", `C:\Users\me\doc.txt`, "", "doc.txt", "text/plain"},
		{"unknown extension", "", "data.unknownext", "", "data.unknownext", DefaultContentType},
		{"no name at all", "", "", "", "", DefaultContentType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := DeriveMeta(tc.declaredName, tc.uploadName, tc.declaredType, 42)
			assert.Equal(t, tc.wantName, m.Name)
			assert.Equal(t, int64(42), m.Size)
			assert.True(t, strings.HasPrefix(m.ContentType, tc.wantPrefix), m.ContentType)
		})
	}
}

func TestDeriveMeta_LongNameCutOnRuneBoundary(t *testing.T) {
	// 2 байта на символ: 255 попадает в середину руны
	long := strings.Repeat("я", 200) + ".txt"
	m := DeriveMeta("", long, "", 1)
	assert.True(t, utf8.ValidString(m.Name))
	assert.Len(t, m.Name, 254)
	assert.Equal(t, strings.Repeat("я", 127), m.Name)

	ascii := strings.Repeat("a", 300)
	assert.Len(t, DeriveMeta(ascii, "", "", 1).Name, 255)
}
