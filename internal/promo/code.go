// Package promo реализует промокоды и их откат при удалении.
package promo

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/DanikLP1/filevault/internal/db"
)

// без I, O, 0, 1: их путают при вводе
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultCodeLength = 10
	MaxCodeInput      = 64
)

// GenerateCode: length символов из codeAlphabet; с prefix получается "PREFIX-TOKEN".
// Уникальность не гарантируется: при конфликте индекса вызывающий генерирует заново.
func GenerateCode(length int, prefix string) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("promo: random: %w", err)
	}
	// 256 делится на 32 нацело, смещения нет
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	token := string(buf)
	if prefix != "" {
		return strings.ToUpper(prefix) + "-" + token, nil
	}
	return token, nil
}

// NormalizeCode: обрезка пробелов и проверка длины пользовательского ввода.
func NormalizeCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" || len(code) > MaxCodeInput {
		return "", ErrInvalidCode
	}
	return code, nil
}

// IsAvailable: активен, внутри окна действия и лимит не исчерпан.
func IsAvailable(p *db.PromoCode, now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	if p.MaxUses != nil && p.UseCount >= *p.MaxUses {
		return false
	}
	return true
}

var storageUnits = []struct {
	name string
	size float64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
}

// FormatStorage: в самой крупной единице, где значение >= 1.
func FormatStorage(bytes int64) string {
	v := float64(bytes)
	for _, u := range storageUnits {
		if v >= u.size {
			return fmt.Sprintf("%.6g %s", v/u.size, u.name)
		}
	}
	return fmt.Sprintf("%d B", bytes)
}

// ApplyToUser меняет u на месте и возвращает только изменённые колонки
// вместе с описаниями эффектов. Повторный вызов снова добавит место.
func ApplyToUser(u *db.User, p *db.PromoCode) (map[string]any, []string) {
	changed := map[string]any{}
	var notes []string
	if p.GrantSubscription && !u.IsSubscribed {
		u.IsSubscribed = true
		changed["is_subscribed"] = true
		notes = append(notes, "subscription activated")
	}
	if p.ExtraStorageBytes > 0 {
		u.StorageQuota = max(0, u.StorageQuota) + p.ExtraStorageBytes
		changed["storage_quota"] = u.StorageQuota
		notes = append(notes, "quota increased by "+FormatStorage(p.ExtraStorageBytes))
	}
	return changed, notes
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
