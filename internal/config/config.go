package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
	"github.com/samber/lo"
)

// Ошибки валидации. Любая из них останавливает запуск до первого обращения к ленте, хранилищу или каналу
var (
	ErrMissingFeedURL         = errors.New("feed_url is required")
	ErrMissingKeywords        = errors.New("keywords are required")
	ErrMissingDeliveryChannel = errors.New("delivery_channel is required")
	ErrInvalidDeliveryChannel = errors.New("delivery_channel is malformed")
	ErrInvalidDailyLimit      = errors.New("daily_limit must be a positive integer")
	ErrMissingStoreDSN        = errors.New("store_dsn is required")
	ErrInvalidStoreDSN        = errors.New("store_dsn has unsupported scheme")
	ErrInvalidTimezone        = errors.New("timezone is unknown")
	ErrMissingRedisURL        = errors.New("redis_url is required for stream delivery")
	ErrMissingTelegramToken   = errors.New("telegram_bot_token is required for telegram delivery")
)

// Хранить в файле будем в формате hcl, переменные окружения с префиксом NPD_
type Config struct {
	FeedURL         string `hcl:"feed_url" env:"FEED_URL"`
	Keywords        string `hcl:"keywords" env:"KEYWORDS"`
	DeliveryChannel string `hcl:"delivery_channel" env:"DELIVERY_CHANNEL"`
	DailyLimit      int    `hcl:"daily_limit" env:"DAILY_LIMIT" default:"5"`
	StoreDSN        string `hcl:"store_dsn" env:"STORE_DSN"`
	LogLevel        string `hcl:"log_level" env:"LOG_LEVEL" default:"info"`
	// Часовой пояс, в котором считается ключ дня
	Timezone string `hcl:"timezone" env:"TIMEZONE" default:"UTC"`

	RedisURL            string `hcl:"redis_url" env:"REDIS_URL"`
	TelegramBotToken    string `hcl:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatID int64  `hcl:"telegram_admin_chat_id" env:"TELEGRAM_ADMIN_CHAT_ID"`

	OpenAIKey            string `hcl:"openai_key" env:"OPENAI_KEY"`
	OpenAIPrompt         string `hcl:"openai_prompt" env:"OPENAI_PROMPT"`
	EnrichEmptySummaries bool   `hcl:"enrich_empty_summaries" env:"ENRICH_EMPTY_SUMMARIES"`

	// Пустое расписание - один запуск и выход
	Schedule    string `hcl:"schedule" env:"SCHEDULE"`
	MetricsAddr string `hcl:"metrics_addr" env:"METRICS_ADDR"`

	RunTimeout       time.Duration `hcl:"run_timeout" env:"RUN_TIMEOUT" default:"15m"`
	FetchTimeout     time.Duration `hcl:"fetch_timeout" env:"FETCH_TIMEOUT" default:"30s"`
	StoreTimeout     time.Duration `hcl:"store_timeout" env:"STORE_TIMEOUT" default:"5s"`
	PublishTimeout   time.Duration `hcl:"publish_timeout" env:"PUBLISH_TIMEOUT" default:"10s"`
	RetryBaseDelay   time.Duration `hcl:"retry_base_delay" env:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxAttempts int           `hcl:"retry_max_attempts" env:"RETRY_MAX_ATTEMPTS" default:"3"`
}

// Вид канала доставки
type ChannelKind string

const (
	ChannelStream   ChannelKind = "stream"
	ChannelTelegram ChannelKind = "telegram"
)

type Channel struct {
	Kind ChannelKind
	// Имя стрима или id чата
	Target string
}

// Вид хранилища счетчика и журнала отправок
type StoreKind string

const (
	StorePostgres StoreKind = "postgres"
	StoreSQLite   StoreKind = "sqlite"
	StoreRedis    StoreKind = "redis"
)

var (
	streamNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)
	chatIDRe     = regexp.MustCompile(`^-?[0-9]{1,20}$`)
)

var (
	cfg     Config
	loadErr error
	once    sync.Once
)

// Конфиг читается один раз за процесс. Ошибка чтения возвращается каждому вызову
func Get() (Config, error) {
	once.Do(func() {
		cfg, loadErr = Load(aconfig.Config{})
	})

	return cfg, loadErr
}

// Load читает конфиг из файлов и окружения. Поля base позволяют подменить источники в тестах.
func Load(base aconfig.Config) (Config, error) {
	var c Config

	if base.EnvPrefix == "" {
		base.EnvPrefix = "NPD"
	}
	if base.Files == nil && !base.SkipFiles {
		base.Files = []string{"./config.hcl", "./config.local.hcl"}
	}
	base.FileDecoders = map[string]aconfig.FileDecoder{
		".hcl": aconfighcl.New(),
	}
	base.SkipFlags = true

	loader := aconfig.LoaderFor(&c, base)
	if err := loader.Load(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

// Validate проверяет все обязательные поля сразу и возвращает их ошибки одной пачкой
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.FeedURL) == "" {
		errs = append(errs, ErrMissingFeedURL)
	}
	if len(c.KeywordList()) == 0 {
		errs = append(errs, ErrMissingKeywords)
	}
	if c.DailyLimit <= 0 {
		errs = append(errs, ErrInvalidDailyLimit)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(c.DeliveryChannel) == "" {
		errs = append(errs, ErrMissingDeliveryChannel)
	} else if ch, err := ParseChannel(c.DeliveryChannel); err != nil {
		errs = append(errs, err)
	} else {
		if ch.Kind == ChannelStream && c.RedisURL == "" {
			errs = append(errs, ErrMissingRedisURL)
		}
		if ch.Kind == ChannelTelegram && c.TelegramBotToken == "" {
			errs = append(errs, ErrMissingTelegramToken)
		}
	}

	if strings.TrimSpace(c.StoreDSN) == "" {
		errs = append(errs, ErrMissingStoreDSN)
	} else if _, _, err := ParseStoreDSN(c.StoreDSN); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// KeywordList разбирает строку ключевых слов через запятую
func (c Config) KeywordList() []string {
	return ParseKeywords(c.Keywords)
}

func ParseKeywords(raw string) []string {
	keywords := lo.Map(strings.Split(raw, ","), func(kw string, _ int) string {
		return strings.TrimSpace(kw)
	})

	return lo.Uniq(lo.Compact(keywords))
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Timezone)
	}

	return loc, nil
}

func (c Config) Channel() (Channel, error) {
	return ParseChannel(c.DeliveryChannel)
}

// ParseChannel разбирает идентификатор вида stream:<name> или telegram:<chat id>
func ParseChannel(raw string) (Channel, error) {
	kind, target, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidDeliveryChannel, raw)
	}

	switch ChannelKind(kind) {
	case ChannelStream:
		if !streamNameRe.MatchString(target) {
			return Channel{}, fmt.Errorf("%w: bad stream name %q", ErrInvalidDeliveryChannel, target)
		}
	case ChannelTelegram:
		if !chatIDRe.MatchString(target) {
			return Channel{}, fmt.Errorf("%w: bad chat id %q", ErrInvalidDeliveryChannel, target)
		}
	default:
		return Channel{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidDeliveryChannel, kind)
	}

	return Channel{Kind: ChannelKind(kind), Target: target}, nil
}

// ChatID возвращает id чата для telegram канала
func (ch Channel) ChatID() (int64, error) {
	return strconv.ParseInt(ch.Target, 10, 64)
}

// ParseStoreDSN определяет тип хранилища по схеме и возвращает строку подключения для драйвера
func ParseStoreDSN(dsn string) (StoreKind, string, error) {
	dsn = strings.TrimSpace(dsn)

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return StorePostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("%w: empty sqlite path", ErrInvalidStoreDSN)
		}
		return StoreSQLite, path, nil
	case strings.HasPrefix(dsn, "file:"):
		return StoreSQLite, dsn, nil
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return StoreRedis, dsn, nil
	}

	return "", "", fmt.Errorf("%w: %q", ErrInvalidStoreDSN, dsn)
}
