package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 从环境变量读取（.env 可选）
type Config struct {
	DatabaseURL string
	RedisAddr   string
	RedisPwd    string
	WebOrigin   string
	RPID        string
	RPOrigins   []string
	SessionTTL  time.Duration
	AdminEmails []string

	BootstrapEmail string
	Port           string
	Environment    string

	SMTP            SMTP
	NewsletterDelay time.Duration

	UpdateFeedURL string
	InstallDir    string
	BackupDir     string
	VersionFile   string
	AppVersion    string
}

type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	AppName  string
}

// Configured reports whether outbound mail can actually be delivered.
func (s SMTP) Configured() bool { return s.Host != "" && (s.Username != "" || s.From != "") }

// LoadEnv loads .env if present; real environment variables win.
func LoadEnv() {
	_ = godotenv.Load()
}

func get(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func csv(v string, lower bool) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if t := strings.TrimSpace(s); t != "" {
			if lower {
				t = strings.ToLower(t)
			}
			out = append(out, t)
		}
	}
	return out
}

func seconds(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n * float64(time.Second))
}

func Load() Config {
	origin := get("WEB_ORIGIN", "http://localhost:3001")
	return Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:    os.Getenv("REDIS_PASSWORD"),
		WebOrigin:   origin,
		RPID:        get("RP_ID", "localhost"),
		RPOrigins:   csv(get("RP_ORIGINS", origin), false),
		SessionTTL:  seconds("SESSION_TTL_SECONDS", 24*time.Hour),
		AdminEmails: csv(os.Getenv("ADMIN_EMAILS"), true), // 例如: "admin@ex.com,ops@ex.com"

		BootstrapEmail: strings.ToLower(os.Getenv("BOOTSTRAP_ADMIN_EMAIL")),
		Port:           get("PORT", "3001"),
		Environment:    get("ENVIRONMENT", "development"),

		SMTP: SMTP{
			Host:     get("SMTP_HOST", ""),
			Port:     get("SMTP_PORT", "587"),
			Username: get("SMTP_USERNAME", ""),
			Password: get("SMTP_PASSWORD", ""),
			From:     get("SMTP_FROM", ""),
			AppName:  get("APP_NAME", "VolunteerOps"),
		},
		NewsletterDelay: seconds("NEWSLETTER_DELAY_SECONDS", time.Second),

		UpdateFeedURL: get("UPDATE_FEED_URL", ""),
		InstallDir:    get("INSTALL_DIR", "."),
		BackupDir:     get("BACKUP_DIR", "./backups"),
		VersionFile:   get("VERSION_FILE", ".env"),
		AppVersion:    get("APP_VERSION", "3.0.0"),
	}
}

func (c Config) Production() bool { return c.Environment == "production" }

func (c Config) SecureCookies() bool { return strings.HasPrefix(c.WebOrigin, "https://") }
