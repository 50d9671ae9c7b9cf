package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("代理模式应禁用 keep-alive：%+v", tr)
	}
}

func TestNewClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Base.DisableKeepAlives {
		t.Fatalf("不期望禁用 keep-alive，但 Base.DisableKeepAlives=true")
	}
	if tr.RetryMax != defaultRetryMax || c.Timeout != defaultTimeout {
		t.Fatalf("默认值不符合预期：retry=%d timeout=%v", tr.RetryMax, c.Timeout)
	}
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	for _, p := range []string{"http://[::1", "127.0.0.1:8080"} {
		if _, err := NewClient(Options{ProxyURL: p}); err == nil {
			t.Fatalf("proxy=%q 期望错误，但得到 nil", p)
		}
	}
}

func noSleep(c *http.Client) *[]time.Duration {
	var delays []time.Duration
	c.Transport.(*Transport).sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return &delays
}

func TestTransport_RetriesOn5xxThenSucceeds(t *testing.T) {
	var hits int32
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.UserAgent())
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := NewClient(Options{BaseDelay: 10 * time.Millisecond})
	delays := noSleep(c)

	b, err := Get(context.Background(), c, srv.URL, 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != "ok" || atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("期望第 3 次成功，实际 hits=%d body=%q", hits, b)
	}
	if len(*delays) != 2 || (*delays)[0] != 10*time.Millisecond || (*delays)[1] != 20*time.Millisecond {
		t.Fatalf("退避不符合预期：%v", *delays)
	}
	if !strings.HasPrefix(ua.Load().(string), "Mozilla/5.0") {
		t.Fatalf("期望使用 UA 池，实际 %q", ua.Load())
	}
}

func TestTransport_RetryAfterHonoredAndCapped(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := NewClient(Options{MaxDelay: time.Second})
	delays := noSleep(c)

	if _, err := Get(context.Background(), c, srv.URL, 0); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != time.Second {
		t.Fatalf("Retry-After 应被上限截断为 1s：%v", *delays)
	}
}

func TestGet_NonRetryableStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := NewClient(Options{})
	noSleep(c)

	_, err := Get(context.Background(), c, srv.URL, 0)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 *StatusError(404)，实际 %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("404 不应重试，实际 hits=%d", hits)
	}
}

func TestGet_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(Options{RetryMax: 1})
	noSleep(c)

	_, err := Get(context.Background(), c, srv.URL, 0)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("期望 *StatusError(502)，实际 %v", err)
	}
}

func TestGet_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	c, _ := NewClient(Options{})
	_, err := Get(context.Background(), c, srv.URL, 10)
	var te *TooLargeError
	if !errors.As(err, &te) {
		t.Fatalf("期望 *TooLargeError，实际 %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("秒数格式解析失败：%v %v", d, ok)
	}
	if _, ok := parseRetryAfter("-1"); ok {
		t.Fatalf("负数不应被接受")
	}
	if _, ok := parseRetryAfter("soon"); ok {
		t.Fatalf("非法值不应被接受")
	}
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if d, ok := parseRetryAfter(future); !ok || d <= 0 {
		t.Fatalf("HTTP-date 格式解析失败：%v %v", d, ok)
	}
}
