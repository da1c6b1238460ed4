package promo

import (
	"strings"
	"testing"
	"time"

	"github.com/DanikLP1/filevault/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(12, "")
	require.NoError(t, err)
	assert.Len(t, code, 12)
	for _, c := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, c), "unexpected symbol %q", c)
	}

	code, err = GenerateCode(8, "spring")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "SPRING-"), code)
	assert.Len(t, code, len("SPRING-")+8)

	code, err = GenerateCode(0, "")
	require.NoError(t, err)
	assert.Len(t, code, DefaultCodeLength)
}

func TestNormalizeCode(t *testing.T) {
	code, err := NormalizeCode("  abc-123 \n")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", code)

	_, err = NormalizeCode("   ")
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = NormalizeCode(strings.Repeat("A", MaxCodeInput+1))
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestIsAvailable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	one := int64(1)

	tests := []struct {
		name string
		p    db.PromoCode
		want bool
	}{
		{"plain active", db.PromoCode{Active: true}, true},
		{"inactive", db.PromoCode{Active: false}, false},
		{"inactive inside window with uses left", db.PromoCode{Active: false, ValidFrom: &past, ValidUntil: &future}, false},
		{"not started", db.PromoCode{Active: true, ValidFrom: &future}, false},
		{"expired", db.PromoCode{Active: true, ValidUntil: &past}, false},
		{"exactly at valid_until", db.PromoCode{Active: true, ValidUntil: &now}, true},
		{"exactly at valid_from", db.PromoCode{Active: true, ValidFrom: &now}, true},
		{"uses exhausted", db.PromoCode{Active: true, MaxUses: &one, UseCount: 1}, false},
		{"uses left", db.PromoCode{Active: true, MaxUses: &one, UseCount: 0}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsAvailable(&tc.p, now))
		})
	}
}

func TestFormatStorage(t *testing.T) {
	tests := map[int64]string{
		0:                     "0 B",
		1023:                  "1023 B",
		1024:                  "1 KB",
		1536:                  "1.5 KB",
		1 << 20:               "1 MB",
		1073741824:            "1 GB",
		5 << 30:               "5 GB",
		1 << 40:               "1 TB",
		1<<40 + 1<<39:         "1.5 TB",
		(1 << 30) - (1 << 20): "1023 MB",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatStorage(in), "FormatStorage(%d)", in)
	}
}

func TestApplyToUser(t *testing.T) {
	t.Run("subscription and storage", func(t *testing.T) {
		u := &db.User{StorageQuota: 1000}
		p := &db.PromoCode{GrantSubscription: true, ExtraStorageBytes: 1024}
		changed, notes := ApplyToUser(u, p)
		assert.Equal(t, map[string]any{"is_subscribed": true, "storage_quota": int64(2024)}, changed)
		assert.Equal(t, []string{"subscription activated", "quota increased by 1 KB"}, notes)
		assert.True(t, u.IsSubscribed)
	})

	t.Run("already subscribed changes nothing for subscription", func(t *testing.T) {
		u := &db.User{IsSubscribed: true, StorageQuota: 10}
		changed, notes := ApplyToUser(u, &db.PromoCode{GrantSubscription: true})
		assert.Empty(t, changed)
		assert.Empty(t, notes)
	})

	t.Run("negative quota is clamped before adding", func(t *testing.T) {
		u := &db.User{StorageQuota: -500}
		changed, _ := ApplyToUser(u, &db.PromoCode{ExtraStorageBytes: 2048})
		assert.Equal(t, int64(2048), changed["storage_quota"])
	})

	t.Run("applying twice double grants storage", func(t *testing.T) {
		u := &db.User{StorageQuota: 0}
		p := &db.PromoCode{ExtraStorageBytes: 100}
		ApplyToUser(u, p)
		ApplyToUser(u, p)
		assert.Equal(t, int64(200), u.StorageQuota)
	})
}

func TestApplyDiscount(t *testing.T) {
	assert.Equal(t, int64(224), ApplyDiscount(299, 25))
	assert.Equal(t, int64(674), ApplyDiscount(899, 25))
	// 149.5 -> 150, не банковское округление
	assert.Equal(t, int64(150), ApplyDiscount(299, 50))
	// 4.5 -> 5, банковское дало бы 4
	assert.Equal(t, int64(5), ApplyDiscount(9, 50))
	assert.Equal(t, int64(299), ApplyDiscount(299, 0))
	assert.Equal(t, int64(0), ApplyDiscount(899, 100))
}

func TestBatchRequestValidate(t *testing.T) {
	days := func(n int) *int { return &n }
	uses := func(n int64) *int64 { return &n }
	ok := BatchRequest{Quantity: 3, DiscountPercent: 10}

	tests := []struct {
		name string
		mod  func(r *BatchRequest)
		ok   bool
	}{
		{"defaults", func(r *BatchRequest) {}, true},
		{"zero quantity", func(r *BatchRequest) { r.Quantity = 0 }, false},
		{"too many", func(r *BatchRequest) { r.Quantity = 51 }, false},
		{"short length", func(r *BatchRequest) { r.Length = 5 }, false},
		{"long length", func(r *BatchRequest) { r.Length = 25 }, false},
		{"max length", func(r *BatchRequest) { r.Length = 24 }, true},
		{"bad prefix", func(r *BatchRequest) { r.Prefix = "no-dash" }, false},
		{"long prefix", func(r *BatchRequest) { r.Prefix = "ABCDEFGHIJKLM" }, false},
		{"discount over 100", func(r *BatchRequest) { r.DiscountPercent = 101 }, false},
		{"too much storage", func(r *BatchRequest) { r.ExtraStorageGB = 10241 }, false},
		{"zero days", func(r *BatchRequest) { r.ValidDays = days(0) }, false},
		{"year", func(r *BatchRequest) { r.ValidDays = days(365) }, true},
		{"zero uses", func(r *BatchRequest) { r.MaxUses = uses(0) }, false},
		{"no benefit", func(r *BatchRequest) { r.DiscountPercent = 0 }, false},
		{"subscription only", func(r *BatchRequest) { r.DiscountPercent = 0; r.GrantSubscription = true }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := ok
			tc.mod(&r)
			err := r.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidBatch)
			}
		})
	}
}
