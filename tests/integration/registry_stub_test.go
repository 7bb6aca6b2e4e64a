package integration

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

// registryStub 模拟 npm registry 的 abbreviated packument 接口，供集成测试复用。
type registryStub struct {
	server   *http.Server
	listener net.Listener
	URL      string

	mu       sync.Mutex
	requests []RecordedRequest
	failures int
	body     []byte
}

// RecordedRequest 捕获每次请求的方法/路径/Headers，便于断言客户端行为。
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
}

const stubPackument = `{
  "dist-tags": {
    "beta": "5.5.0-beta",
    "latest": "5.4.2",
    "next": "5.5.0-dev.20240301",
    "rc": "5.4.1-rc",
    "typescript2": "2.9.2",
    "typescript3": "3.9.10"
  },
  "versions": {
    "3.9.10": {"name": "typescript", "version": "3.9.10"},
    "4.9.5": {"name": "typescript", "version": "4.9.5"},
    "5.2.0": {"name": "typescript", "version": "5.2.0"},
    "5.4.1-rc": {"name": "typescript", "version": "5.4.1-rc"},
    "5.4.2": {"name": "typescript", "version": "5.4.2"}
  }
}`

func newRegistryStub(t *testing.T) *registryStub {
	t.Helper()

	stub := &registryStub{body: []byte(stubPackument)}

	mux := http.NewServeMux()
	mux.HandleFunc("/typescript", func(w http.ResponseWriter, r *http.Request) {
		if stub.consumeFailure() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.npm.install-v1+json")
		_, _ = w.Write(stub.packumentBody())
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.recordRequest(r)
		mux.ServeHTTP(w, r)
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start registry stub listener: %v", err)
	}
	server := &http.Server{Handler: handler}

	stub.server = server
	stub.listener = listener
	stub.URL = "http://" + listener.Addr().String()

	go func() {
		_ = server.Serve(listener)
	}()

	return stub
}

func (s *registryStub) Close() {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if s.server != nil {
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *registryStub) recordRequest(r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
	})
	s.mu.Unlock()
}

func (s *registryStub) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]RecordedRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// FailNext 让接下来的 n 次 packument 请求返回 502。
func (s *registryStub) FailNext(n int) {
	s.mu.Lock()
	s.failures = n
	s.mu.Unlock()
}

func (s *registryStub) consumeFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures <= 0 {
		return false
	}
	s.failures--
	return true
}

// SetPackument 替换后续请求返回的 packument 内容。
func (s *registryStub) SetPackument(body string) {
	s.mu.Lock()
	s.body = []byte(body)
	s.mu.Unlock()
}

func (s *registryStub) packumentBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}
