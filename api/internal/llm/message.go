package llm

import "context"

// ImageContent: одно inline-изображение. Base64 без префикса data:.
type ImageContent struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// Message: промпт, не зависящий от провайдера. Порядок картинок сохраняется:
// эталонные страницы идут раньше проверяемых.
type Message struct {
	SystemText string         `json:"system_text"`
	UserText   string         `json:"user_text"`
	Images     []ImageContent `json:"images,omitempty"`
}

// Options: то, что может задать вызывающий код.
type Options struct {
	ForcedJSON bool `json:"forced_json"`
}

// CallOptions передаются адаптеру диспетчером.
// Prefill и Reasoning выставляет только диспетчер.
type CallOptions struct {
	ForcedJSON bool
	Prefill    string
	Reasoning  bool
}

// DispatchResult: единственный контракт ответа адаптера.
type DispatchResult struct {
	Text string `json:"text"`
}

// Adapter переводит Message в формат конкретного провайдера.
type Adapter interface {
	Name() string
	Call(ctx context.Context, model string, msg Message, cred ProviderCredential, opts CallOptions) (DispatchResult, error)
}

// Capabilities: статичные возможности провайдера.
type Capabilities struct {
	SupportsForcedJSON       bool
	SupportsAssistantPrefill map[string]bool
	IsMultimodal             bool
	// PageOCR: одна картинка за вызов, в ответ текст страницы.
	PageOCR bool
}

// PrefillAllowed: можно ли подставить начало ответа ассистента для model.
func (c Capabilities) PrefillAllowed(model string) bool {
	return c.SupportsAssistantPrefill[model]
}
