package dispatch

import "grader-proxy/api/internal/llm"

// DefaultProvider получает все неизвестные идентификаторы моделей.
const DefaultProvider = llm.ProviderOpenAI

// Route: куда уходит логический идентификатор модели.
type Route struct {
	Provider string `json:"provider"`
	// Model: реальное имя модели у провайдера.
	Model string `json:"model"`
	// Reasoning: модель думает до ответа, затравка ей запрещена.
	Reasoning bool `json:"reasoning,omitempty"`
}

var routes = map[string]Route{
	// openai
	"gpt-4o":      {Provider: llm.ProviderOpenAI, Model: "gpt-4o"},
	"gpt-4o-mini": {Provider: llm.ProviderOpenAI, Model: "gpt-4o-mini"},
	"gpt-4.1":     {Provider: llm.ProviderOpenAI, Model: "gpt-4.1"},
	"gpt-5":       {Provider: llm.ProviderOpenAI, Model: "gpt-5", Reasoning: true},
	"o3":          {Provider: llm.ProviderOpenAI, Model: "o3", Reasoning: true},
	"o4-mini":     {Provider: llm.ProviderOpenAI, Model: "o4-mini", Reasoning: true},

	// anthropic
	"claude-3-5-sonnet":          {Provider: llm.ProviderAnthropic, Model: "claude-3-5-sonnet-20241022"},
	"claude-3-7-sonnet":          {Provider: llm.ProviderAnthropic, Model: "claude-3-7-sonnet-20250219"},
	"claude-3-7-sonnet-thinking": {Provider: llm.ProviderAnthropic, Model: "claude-3-7-sonnet-20250219", Reasoning: true},
	"claude-sonnet-4-5":          {Provider: llm.ProviderAnthropic, Model: "claude-sonnet-4-5-20250929"},
	"claude-sonnet-4-5-thinking": {Provider: llm.ProviderAnthropic, Model: "claude-sonnet-4-5-20250929", Reasoning: true},
	"claude-opus-4-1":            {Provider: llm.ProviderAnthropic, Model: "claude-opus-4-1-20250805"},

	// gemini
	"gemini-2.5-pro":   {Provider: llm.ProviderGemini, Model: "gemini-2.5-pro"},
	"gemini-2.5-flash": {Provider: llm.ProviderGemini, Model: "gemini-2.5-flash"},
	"gemini-2.0-flash": {Provider: llm.ProviderGemini, Model: "gemini-2.0-flash"},

	// mistral / deepseek через OpenAI-совместимый API
	"mistral-large":     {Provider: llm.ProviderMistral, Model: "mistral-large-latest"},
	"pixtral-large":     {Provider: llm.ProviderMistral, Model: "pixtral-large-latest"},
	"deepseek-chat":     {Provider: llm.ProviderDeepSeek, Model: "deepseek-chat"},
	"deepseek-reasoner": {Provider: llm.ProviderDeepSeek, Model: "deepseek-reasoner", Reasoning: true},

	// OCR
	"mistral-ocr":           {Provider: llm.ProviderMistralOCR, Model: "mistral-ocr-latest"},
	"yandex-ocr":            {Provider: llm.ProviderYandex, Model: "handwritten"},
	"yandex-ocr-page":       {Provider: llm.ProviderYandex, Model: "page"},
	"azure-docintel":        {Provider: llm.ProviderDocIntel, Model: "prebuilt-read"},
	"azure-docintel-layout": {Provider: llm.ProviderDocIntel, Model: "prebuilt-layout"},
}

// providerCaps: неизменяемая таблица возможностей провайдеров.
var providerCaps = map[string]llm.Capabilities{
	llm.ProviderOpenAI:   {SupportsForcedJSON: true, IsMultimodal: true},
	llm.ProviderMistral:  {SupportsForcedJSON: true, IsMultimodal: true},
	llm.ProviderDeepSeek: {SupportsForcedJSON: true, IsMultimodal: false},
	llm.ProviderGemini:   {SupportsForcedJSON: true, IsMultimodal: true},
	llm.ProviderAnthropic: {
		SupportsForcedJSON: false,
		IsMultimodal:       true,
		SupportsAssistantPrefill: map[string]bool{
			"claude-3-5-sonnet-20241022": true,
			"claude-3-7-sonnet-20250219": true,
			"claude-sonnet-4-5-20250929": true,
			"claude-opus-4-1-20250805":   true,
		},
	},
	llm.ProviderMistralOCR: {IsMultimodal: true, PageOCR: true},
	llm.ProviderYandex:     {IsMultimodal: true, PageOCR: true},
	llm.ProviderDocIntel:   {IsMultimodal: true, PageOCR: true},
}
