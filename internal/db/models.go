package db

import "time"

// User: владелец квоты и флага подписки. Остальные поля принадлежат аутентификации.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;size:254;not null"`
	IsStaff      bool      `gorm:"not null"`
	IsSubscribed bool      `gorm:"not null"`
	StorageQuota int64     `gorm:"not null"` // байты
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// PromoCode: набор бонусов: скидка, подписка, доп. место.
type PromoCode struct {
	ID                uint   `gorm:"primaryKey"`
	Code              string `gorm:"uniqueIndex;size:64;not null"`
	Description       string `gorm:"size:255"`
	DiscountPercent   int    `gorm:"not null"`
	GrantSubscription bool   `gorm:"not null"`
	ExtraStorageBytes int64  `gorm:"not null"`
	MaxUses           *int64 // NULL => без лимита
	UseCount          int64  `gorm:"not null"`
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	// без default:true, иначе gorm подменит false на значение по умолчанию
	Active      bool      `gorm:"not null"`
	CreatedByID *uint     `gorm:"index"`
	CreatedAt   time.Time `gorm:"not null"`

	CreatedBy *User `gorm:"foreignKey:CreatedByID;references:ID;constraint:OnDelete:SET NULL"`
}

// PromoRedemption: факт активации (promo, user); значения бонусов сняты на момент активации.
type PromoRedemption struct {
	ID                  uint      `gorm:"primaryKey"`
	PromoID             uint      `gorm:"uniqueIndex:ux_redemption_promo_user,priority:1;not null"`
	UserID              uint      `gorm:"uniqueIndex:ux_redemption_promo_user,priority:2;index;not null"`
	RedeemedAt          time.Time `gorm:"not null"`
	DiscountPercent     int       `gorm:"not null"`
	ExtraStorageBytes   int64     `gorm:"not null"`
	GrantedSubscription bool      `gorm:"not null"`

	Promo *PromoCode `gorm:"foreignKey:PromoID;references:ID;constraint:OnDelete:CASCADE"`
	User  *User      `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

const (
	DropStatePending = "pending"
	DropStateReady   = "ready"
)

// DropFile: анонимная загрузка по токену с ограниченным сроком жизни.
type DropFile struct {
	ID          uint      `gorm:"primaryKey"`
	Token       string    `gorm:"uniqueIndex;size:16;not null"`
	BlobID      string    `gorm:"size:255;not null"`
	Name        string    `gorm:"size:255"`
	Size        int64     `gorm:"not null"`
	ContentType string    `gorm:"size:120"`
	State       string    `gorm:"size:16;not null"` // pending|ready
	CreatedAt   time.Time `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"not null"`
}

// File: файл пользователя; is_deleted => в корзине до purge.
type File struct {
	ID          uint      `gorm:"primaryKey"`
	OwnerID     uint      `gorm:"not null"`
	BlobID      string    `gorm:"size:255;not null"`
	Name        string    `gorm:"size:255"`
	Size        int64     `gorm:"not null"`
	ContentType string    `gorm:"size:120"`
	UploadedAt  time.Time `gorm:"not null"`
	IsDeleted   bool      `gorm:"not null"`
	DeletedAt   *time.Time

	Owner *User `gorm:"foreignKey:OwnerID;references:ID;constraint:OnDelete:CASCADE"`
}
