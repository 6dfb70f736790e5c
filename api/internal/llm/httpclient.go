package llm

import (
	"io"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient: общий клиент для адаптеров.
func NewHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second, // TCP connect
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// Ждём первые заголовки дольше: модели с рассуждением долго молчат до TTFB
		ResponseHeaderTimeout: 180 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	// Timeout=0: дедлайн задаёт контекст вызова
	return &http.Client{Timeout: 0, Transport: tr}
}

// ReadErrorBody читает не больше MaxErrorBody байт тела ошибки.
func ReadErrorBody(r io.Reader) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, MaxErrorBody+1))
	return b
}
