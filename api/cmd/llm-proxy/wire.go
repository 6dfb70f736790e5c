package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"grader-proxy/api/internal/config"
	"grader-proxy/api/internal/dispatch"
	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/llm/anthropic"
	"grader-proxy/api/internal/llm/docintel"
	"grader-proxy/api/internal/llm/gemini"
	"grader-proxy/api/internal/llm/gpt"
	"grader-proxy/api/internal/llm/mistral"
	"grader-proxy/api/internal/llm/yandex"
)

// newLogger: человекочитаемый вывод в development, JSON иначе.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development() {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

// newDispatcher регистрирует адаптер на каждого провайдера.
func newDispatcher(cfg config.Config, log *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(log.Named("dispatch"),
		gpt.New(llm.ProviderOpenAI, cfg.OpenAIBaseURL),
		gpt.New(llm.ProviderMistral, cfg.MistralBaseURL),
		gpt.New(llm.ProviderDeepSeek, cfg.DeepSeekBaseURL),
		anthropic.New(cfg.AnthropicBaseURL),
		gemini.New(),
		mistral.New(cfg.MistralBaseURL),
		yandex.New(cfg.YandexOCRURL, cfg.YandexIAMURL, cfg.YandexLangs),
		docintel.New(cfg.DocIntelPollInterval, cfg.DocIntelMaxAttempts),
	)
}
