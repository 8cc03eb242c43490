package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	UploadDriverLocal      = "local"
	UploadDriverCloudinary = "cloudinary"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database  DatabaseConfig
	Redis     RedisConfig
	Mongo     MongoConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Dashboard DashboardConfig
	Uploads   UploadConfig
	Rules     ReportRulesConfig
	Exports   ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MongoConfig points at the activity timeline store. An empty URI disables it.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DashboardConfig governs the status counts cache.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// UploadConfig selects the media uploader.
type UploadConfig struct {
	Driver             string
	Dir                string
	MaxMultipartMemory int64
	Cloudinary         CloudinaryConfig
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// ReportRulesConfig carries the raw validation tables loaded from the environment.
type ReportRulesConfig struct {
	MaxPhotos        int
	MaxVideos        int
	MaxPhotoBytes    int64
	MaxVideoBytes    int64
	PhotoMIMETypes   []string
	VideoMIMETypes   []string
	DuplicateWindow  time.Duration
	DefaultDueIn     time.Duration
	MaxDueIn         time.Duration
	MinLatitude      float64
	MaxLatitude      float64
	MinLongitude     float64
	MaxLongitude     float64
	CategoryPoints   map[string]int
	DefaultPoints    int
	AssignableRoles  []string
	PageLimitDefault int
	PageLimitMaximum int
}

// ExportsConfig configures asynchronous report listing exports.
type ExportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Mongo = MongoConfig{
		URI:            v.GetString("MONGO_URI"),
		Database:       v.GetString("MONGO_DATABASE"),
		ConnectTimeout: parseDuration(v.GetString("MONGO_CONNECT_TIMEOUT"), 10*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Uploads = UploadConfig{
		Driver:             strings.ToLower(v.GetString("UPLOAD_DRIVER")),
		Dir:                v.GetString("UPLOAD_DIR"),
		MaxMultipartMemory: v.GetInt64("UPLOAD_MAX_MULTIPART_MEMORY"),
		Cloudinary: CloudinaryConfig{
			CloudName: v.GetString("CLOUDINARY_CLOUD_NAME"),
			APIKey:    v.GetString("CLOUDINARY_API_KEY"),
			APISecret: v.GetString("CLOUDINARY_API_SECRET"),
			Folder:    v.GetString("CLOUDINARY_FOLDER"),
		},
	}

	cfg.Rules = ReportRulesConfig{
		MaxPhotos:        v.GetInt("REPORT_MAX_PHOTOS"),
		MaxVideos:        v.GetInt("REPORT_MAX_VIDEOS"),
		MaxPhotoBytes:    v.GetInt64("REPORT_MAX_PHOTO_BYTES"),
		MaxVideoBytes:    v.GetInt64("REPORT_MAX_VIDEO_BYTES"),
		PhotoMIMETypes:   splitAndTrim(v.GetString("REPORT_PHOTO_MIME_TYPES")),
		VideoMIMETypes:   splitAndTrim(v.GetString("REPORT_VIDEO_MIME_TYPES")),
		DuplicateWindow:  parseDuration(v.GetString("REPORT_DUPLICATE_WINDOW"), 24*time.Hour),
		DefaultDueIn:     parseDuration(v.GetString("REPORT_DEFAULT_DUE_IN"), 7*24*time.Hour),
		MaxDueIn:         parseDuration(v.GetString("REPORT_MAX_DUE_IN"), 30*24*time.Hour),
		MinLatitude:      v.GetFloat64("REPORT_BOUNDS_MIN_LAT"),
		MaxLatitude:      v.GetFloat64("REPORT_BOUNDS_MAX_LAT"),
		MinLongitude:     v.GetFloat64("REPORT_BOUNDS_MIN_LNG"),
		MaxLongitude:     v.GetFloat64("REPORT_BOUNDS_MAX_LNG"),
		CategoryPoints:   parseIntMap(v.GetString("REPORT_CATEGORY_POINTS")),
		DefaultPoints:    v.GetInt("REPORT_DEFAULT_POINTS"),
		AssignableRoles:  splitAndTrim(v.GetString("REPORT_ASSIGNABLE_ROLES")),
		PageLimitDefault: v.GetInt("REPORT_PAGE_LIMIT_DEFAULT"),
		PageLimitMaximum: v.GetInt("REPORT_PAGE_LIMIT_MAX"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:           v.GetBool("ENABLE_EXPORTS"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "civic_reports")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "civic_reports")
	v.SetDefault("MONGO_CONNECT_TIMEOUT", "10s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("UPLOAD_DRIVER", UploadDriverLocal)
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("UPLOAD_MAX_MULTIPART_MEMORY", 32<<20)
	v.SetDefault("CLOUDINARY_CLOUD_NAME", "")
	v.SetDefault("CLOUDINARY_API_KEY", "")
	v.SetDefault("CLOUDINARY_API_SECRET", "")
	v.SetDefault("CLOUDINARY_FOLDER", "reports")

	v.SetDefault("REPORT_MAX_PHOTOS", 5)
	v.SetDefault("REPORT_MAX_VIDEOS", 2)
	v.SetDefault("REPORT_MAX_PHOTO_BYTES", 5*1024*1024)
	v.SetDefault("REPORT_MAX_VIDEO_BYTES", 50*1024*1024)
	v.SetDefault("REPORT_PHOTO_MIME_TYPES", "image/jpeg,image/jpg,image/png,image/webp")
	v.SetDefault("REPORT_VIDEO_MIME_TYPES", "video/mp4,video/quicktime,video/x-msvideo,video/webm")
	v.SetDefault("REPORT_DUPLICATE_WINDOW", "24h")
	v.SetDefault("REPORT_DEFAULT_DUE_IN", "168h")
	v.SetDefault("REPORT_MAX_DUE_IN", "720h")
	v.SetDefault("REPORT_BOUNDS_MIN_LAT", 26.0)
	v.SetDefault("REPORT_BOUNDS_MAX_LAT", 31.0)
	v.SetDefault("REPORT_BOUNDS_MIN_LNG", 80.0)
	v.SetDefault("REPORT_BOUNDS_MAX_LNG", 89.0)
	v.SetDefault("REPORT_CATEGORY_POINTS", "emergency=20,safety=15,illegal_activity=12,road=10,water=10,electricity=10,sanitation=8")
	v.SetDefault("REPORT_DEFAULT_POINTS", 5)
	v.SetDefault("REPORT_ASSIGNABLE_ROLES", "municipality_admin,field_staff")
	v.SetDefault("REPORT_PAGE_LIMIT_DEFAULT", 10)
	v.SetDefault("REPORT_PAGE_LIMIT_MAX", 100)

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseIntMap reads "key=value,key=value" pairs, skipping malformed entries.
func parseIntMap(raw string) map[string]int {
	result := make(map[string]int)
	for _, pair := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		result[strings.TrimSpace(key)] = n
	}
	return result
}
