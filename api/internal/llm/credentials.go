package llm

import "strings"

// Имена провайдеров (адаптеры, диспетчер, журнал вызовов).
const (
	ProviderOpenAI     = "openai"
	ProviderMistral    = "mistral"
	ProviderDeepSeek   = "deepseek"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderMistralOCR = "mistral-ocr"
	ProviderYandex     = "yandex"
	ProviderDocIntel   = "docintel"
)

// Credentials передаются по значению в каждый вызов, глобальных ключей нет.
type Credentials struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	MistralAPIKey   string
	DeepSeekAPIKey  string

	YandexOAuthToken string
	YandexFolderID   string

	DocIntelEndpoint string
	DocIntelKey      string
}

// ProviderCredential: часть Credentials для одного адаптера.
type ProviderCredential struct {
	APIKey string
	// Endpoint: адрес ресурса для провайдеров без общего хоста.
	Endpoint string
	// Scope: folder id в Yandex Cloud.
	Scope string
}

// Empty: ключ не задан.
func (c ProviderCredential) Empty() bool {
	return strings.TrimSpace(c.APIKey) == ""
}

// For возвращает ключи для provider.
func (c Credentials) For(provider string) ProviderCredential {
	switch provider {
	case ProviderOpenAI:
		return ProviderCredential{APIKey: c.OpenAIAPIKey}
	case ProviderMistral, ProviderMistralOCR:
		return ProviderCredential{APIKey: c.MistralAPIKey}
	case ProviderDeepSeek:
		return ProviderCredential{APIKey: c.DeepSeekAPIKey}
	case ProviderAnthropic:
		return ProviderCredential{APIKey: c.AnthropicAPIKey}
	case ProviderGemini:
		return ProviderCredential{APIKey: c.GeminiAPIKey}
	case ProviderYandex:
		return ProviderCredential{APIKey: c.YandexOAuthToken, Scope: c.YandexFolderID}
	case ProviderDocIntel:
		return ProviderCredential{APIKey: c.DocIntelKey, Endpoint: c.DocIntelEndpoint}
	default:
		return ProviderCredential{}
	}
}
