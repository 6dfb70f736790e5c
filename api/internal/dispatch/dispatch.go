// Package dispatch выбирает провайдера по логическому идентификатору модели
// и вызывает его адаптер единообразно.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"grader-proxy/api/internal/llm"
	"grader-proxy/api/internal/metrics"
)

// JSONSeed: затравка ответа ассистента для режима JSON.
const JSONSeed = "{"

type Dispatcher struct {
	adapters map[string]llm.Adapter
	log      *zap.Logger
}

func New(log *zap.Logger, adapters ...llm.Adapter) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{adapters: make(map[string]llm.Adapter, len(adapters)), log: log}
	for _, a := range adapters {
		d.adapters[a.Name()] = a
	}
	return d
}

// Resolve возвращает маршрут и возможности для modelID. known=false означает,
// что id не из таблицы и ушёл провайдеру по умолчанию как есть.
func (d *Dispatcher) Resolve(modelID string) (Route, llm.Capabilities, bool) {
	id := strings.TrimSpace(modelID)
	r, ok := routes[id]
	if !ok {
		r = Route{Provider: DefaultProvider, Model: id}
	}
	return r, providerCaps[r.Provider], ok
}

// RouteInfo: строка таблицы маршрутизации для /v1/models и команды models.
type RouteInfo struct {
	ID string `json:"id"`
	Route
	ForcedJSON bool `json:"forced_json"`
	Prefill    bool `json:"prefill"`
	Multimodal bool `json:"multimodal"`
	PageOCR    bool `json:"page_ocr"`
	// Available: адаптер провайдера зарегистрирован.
	Available bool `json:"available"`
}

func (d *Dispatcher) Routes() []RouteInfo {
	out := make([]RouteInfo, 0, len(routes))
	for id, r := range routes {
		_, has := d.adapters[r.Provider]
		c := providerCaps[r.Provider]
		out = append(out, RouteInfo{
			ID:         id,
			Route:      r,
			ForcedJSON: c.SupportsForcedJSON,
			Prefill:    c.PrefillAllowed(r.Model) && !r.Reasoning,
			Multimodal: c.IsMultimodal,
			PageOCR:    c.PageOCR,
			Available:  has,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CallOptionsFor применяет правило затравки: "{" только если нужен JSON,
// у провайдера нет нативного JSON-режима, модель в списке prefill
// и модель не рассуждающая.
func CallOptionsFor(route Route, caps llm.Capabilities, opts llm.Options) llm.CallOptions {
	co := llm.CallOptions{ForcedJSON: opts.ForcedJSON, Reasoning: route.Reasoning}
	if opts.ForcedJSON && !caps.SupportsForcedJSON && caps.PrefillAllowed(route.Model) && !route.Reasoning {
		co.Prefill = JSONSeed
	}
	return co
}

// CallModel: единственная операция диспетчера.
func (d *Dispatcher) CallModel(ctx context.Context, modelID string, msg llm.Message, creds llm.Credentials, opts llm.Options) (string, error) {
	route, caps, known := d.Resolve(modelID)
	if !known {
		d.log.Debug("unknown model id, using default provider",
			zap.String("model_id", modelID), zap.String("provider", route.Provider))
	}

	if len(msg.Images) > 0 && !caps.IsMultimodal {
		return "", fmt.Errorf("%s (%s): %w", modelID, route.Provider, llm.ErrImagesUnsupported)
	}
	cred := creds.For(route.Provider)
	if cred.Empty() {
		return "", fmt.Errorf("%s (%s): %w", modelID, route.Provider, llm.ErrMissingCredential)
	}
	adapter, ok := d.adapters[route.Provider]
	if !ok {
		return "", fmt.Errorf("%s: no adapter registered for provider %q", modelID, route.Provider)
	}

	callOpts := CallOptionsFor(route, caps, opts)
	start := time.Now()
	res, err := adapter.Call(ctx, route.Model, msg, cred, callOpts)
	elapsed := time.Since(start)

	policy := llm.IsContentPolicy(err)
	metrics.ProviderCalls.WithLabelValues(route.Provider, metrics.ModelLabel(route.Model, known), metrics.Outcome(err, policy)).Inc()
	metrics.ProviderCallDuration.WithLabelValues(route.Provider).Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("model_id", modelID),
		zap.String("provider", route.Provider),
		zap.String("model", route.Model),
		zap.Int("images", len(msg.Images)),
		zap.Bool("forced_json", callOpts.ForcedJSON),
		zap.Bool("prefill", callOpts.Prefill != ""),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		d.log.Warn("provider call failed", append(fields, zap.Error(err), zap.Bool("content_policy", policy))...)
		return "", err
	}
	d.log.Debug("provider call ok", append(fields, zap.Int("text_len", len(res.Text)))...)
	return res.Text, nil
}
