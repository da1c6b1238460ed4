package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string // ":8080"
	DataDir   string // "./data"
	DBDSN     string // "file:filevault.db" или "postgres://..."
	LogLevel  string // "info"
	LogJSON   bool   // true
	JWTSecret string
	// почты, которым при первом входе выдаётся is_staff
	AdminEmails []string

	BlobDriver    string // "fs" | "s3"
	S3Bucket      string
	S3Region      string // "us-east-1"
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3PathStyle   bool
	PublicBaseURL string // "" -> берём из запроса

	DropLifetime      time.Duration // 72h
	DropMaxBytes      int64         // 100 MiB
	UploadMaxBytes    int64         // 2 GiB
	DefaultQuotaBytes int64         // 5 GiB
	QuotaFloorBytes   int64         // нижняя граница квоты при откате промокодов
}

const (
	DefaultDropLifetime   = 72 * time.Hour
	DefaultDropMaxBytes   = 100 << 20
	DefaultUploadMaxBytes = 2 << 30
	DefaultQuotaBytes     = 5 << 30
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		log.Printf("invalid %s: %q", key, v)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("invalid %s: %v", key, err)
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s: %q", key, v)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// New читает .env (если есть), затем переменные окружения.
func New() Config {
	_ = godotenv.Load()

	return Config{
		Addr:          getenv("ADDR", ":8080"),
		DataDir:       getenv("DATA_DIR", "./data"),
		DBDSN:         getenv("DB_DSN", "file:filevault.db"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogJSON:       getBool("LOG_JSON", true),
		JWTSecret:     getenv("JWT_SECRET", ""),
		AdminEmails:   splitList(os.Getenv("ADMIN_EMAILS")),
		BlobDriver:    strings.ToLower(getenv("BLOB_DRIVER", "fs")),
		S3Bucket:      getenv("S3_BUCKET", "filevault"),
		S3Region:      getenv("S3_REGION", "us-east-1"),
		S3Endpoint:    getenv("S3_ENDPOINT", ""),
		S3AccessKey:   getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getenv("S3_SECRET_KEY", ""),
		S3PathStyle:   getBool("S3_PATH_STYLE", true),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", ""), "/"),

		DropLifetime:      getDuration("DROP_LIFETIME", DefaultDropLifetime),
		DropMaxBytes:      getInt64("DROP_MAX_BYTES", DefaultDropMaxBytes),
		UploadMaxBytes:    getInt64("UPLOAD_MAX_BYTES", DefaultUploadMaxBytes),
		DefaultQuotaBytes: getInt64("DEFAULT_QUOTA_BYTES", DefaultQuotaBytes),
		QuotaFloorBytes:   getInt64("QUOTA_FLOOR_BYTES", 0),
	}
}

func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range c.AdminEmails {
		if a == email {
			return true
		}
	}
	return false
}
