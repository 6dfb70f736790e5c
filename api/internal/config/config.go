package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/llm/anthropic"
	"grader-proxy/api/internal/llm/docintel"
	"grader-proxy/api/internal/llm/gpt"
	"grader-proxy/api/internal/llm/mistral"
	"grader-proxy/api/internal/llm/yandex"
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	// ключи провайдеров по умолчанию; запрос может переопределить любой из них
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GeminiAPIKey     string
	MistralAPIKey    string
	DeepSeekAPIKey   string
	YandexOAuthToken string
	YandexFolderID   string
	DocIntelEndpoint string
	DocIntelKey      string

	OpenAIBaseURL    string
	AnthropicBaseURL string
	MistralBaseURL   string
	DeepSeekBaseURL  string
	YandexOCRURL     string
	YandexIAMURL     string
	YandexLangs      []string

	DocIntelPollInterval time.Duration
	DocIntelMaxAttempts  int

	// TranscribeModels: порядок перебора, если запрос его не задал.
	TranscribeModels []string
	RequestTimeout   time.Duration

	DatabaseURL    string
	CallLogEnabled bool
	CallLogTimeout time.Duration

	// CallLogRetention: записи старше чистятся при старте, 0 выключает чистку.
	CallLogRetention time.Duration
}

// HTTPAddress: адрес, который слушает сервер.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// Development: локальный запуск (человекочитаемые логи).
func (c Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// Credentials: ключи из окружения в виде, который понимает диспетчер.
func (c Config) Credentials() llm.Credentials {
	return llm.Credentials{
		OpenAIAPIKey:     c.OpenAIAPIKey,
		AnthropicAPIKey:  c.AnthropicAPIKey,
		GeminiAPIKey:     c.GeminiAPIKey,
		MistralAPIKey:    c.MistralAPIKey,
		DeepSeekAPIKey:   c.DeepSeekAPIKey,
		YandexOAuthToken: c.YandexOAuthToken,
		YandexFolderID:   c.YandexFolderID,
		DocIntelEndpoint: c.DocIntelEndpoint,
		DocIntelKey:      c.DocIntelKey,
	}
}

// Load читает .env (если есть) и переменные окружения.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("port", "8000")
	v.SetDefault("app_env", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("openai_base_url", gpt.OpenAIBaseURL)
	v.SetDefault("anthropic_base_url", anthropic.DefaultBaseURL)
	v.SetDefault("mistral_base_url", mistral.DefaultBaseURL)
	v.SetDefault("deepseek_base_url", gpt.DeepSeekBaseURL)
	v.SetDefault("yandex_ocr_url", yandex.DefaultOCRURL)
	v.SetDefault("yandex_iam_url", yandex.DefaultIAMURL)
	v.SetDefault("yandex_langs", "fr,en")
	v.SetDefault("docintel_poll_interval", docintel.DefaultInterval.String())
	v.SetDefault("docintel_max_attempts", docintel.DefaultMaxAttempts)
	v.SetDefault("transcribe_models", "mistral-ocr,gemini-2.5-flash,gpt-4o")
	v.SetDefault("request_timeout", "180s")
	v.SetDefault("call_log_enabled", true)
	v.SetDefault("call_log_timeout", "5s")
	v.SetDefault("call_log_retention", "0s")

	pollInterval, err := duration(v, "docintel_poll_interval")
	if err != nil {
		return Config{}, err
	}
	reqTimeout, err := duration(v, "request_timeout")
	if err != nil {
		return Config{}, err
	}
	logTimeout, err := duration(v, "call_log_timeout")
	if err != nil {
		return Config{}, err
	}
	retention, err := duration(v, "call_log_retention")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:     v.GetString("port"),
		AppEnv:   strings.ToLower(v.GetString("app_env")),
		LogLevel: strings.ToLower(v.GetString("log_level")),

		OpenAIAPIKey:     v.GetString("openai_api_key"),
		AnthropicAPIKey:  v.GetString("anthropic_api_key"),
		GeminiAPIKey:     v.GetString("gemini_api_key"),
		MistralAPIKey:    v.GetString("mistral_api_key"),
		DeepSeekAPIKey:   v.GetString("deepseek_api_key"),
		YandexOAuthToken: v.GetString("yandex_oauth_token"),
		YandexFolderID:   v.GetString("yandex_folder_id"),
		DocIntelEndpoint: v.GetString("docintel_endpoint"),
		DocIntelKey:      v.GetString("docintel_key"),

		OpenAIBaseURL:    v.GetString("openai_base_url"),
		AnthropicBaseURL: v.GetString("anthropic_base_url"),
		MistralBaseURL:   v.GetString("mistral_base_url"),
		DeepSeekBaseURL:  v.GetString("deepseek_base_url"),
		YandexOCRURL:     v.GetString("yandex_ocr_url"),
		YandexIAMURL:     v.GetString("yandex_iam_url"),
		YandexLangs:      splitList(v.GetString("yandex_langs")),

		DocIntelPollInterval: pollInterval,
		DocIntelMaxAttempts:  v.GetInt("docintel_max_attempts"),

		TranscribeModels: splitList(v.GetString("transcribe_models")),
		RequestTimeout:   reqTimeout,

		DatabaseURL:      v.GetString("database_url"),
		CallLogEnabled:   v.GetBool("call_log_enabled"),
		CallLogTimeout:   logTimeout,
		CallLogRetention: retention,
	}

	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8000"
	}
	if cfg.DocIntelMaxAttempts <= 0 {
		cfg.DocIntelMaxAttempts = docintel.DefaultMaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, errors.New("request_timeout must be > 0")
	}
	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
