package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	client := New(nil)
	require.NotNil(t, client)
	assert.Equal(t, 30*time.Second, client.config.Timeout)

	config := &Config{
		Timeout:    10 * time.Second,
		MaxRetries: 5,
		RetryDelay: 2 * time.Second,
	}
	client = New(config)
	assert.Equal(t, 10*time.Second, client.config.Timeout)
	assert.Equal(t, 5, client.config.MaxRetries)
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-value", r.Header.Get("Test-Header"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"success"}`))
	}))
	defer server.Close()

	client := New(nil)
	headers := map[string]string{
		"Test-Header": "test-value",
	}

	resp, err := client.Get(context.Background(), server.URL, headers)
	require.NoError(t, err)
	assert.True(t, resp.OK())

	var result map[string]interface{}
	require.NoError(t, resp.JSON(&result))
	assert.Equal(t, "success", result["message"])
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "test")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":123}`))
	}))
	defer server.Close()

	client := New(nil)
	requestBody := map[string]interface{}{
		"name":  "test",
		"value": 42,
	}

	resp, err := client.PostJSON(context.Background(), server.URL, requestBody, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestPostForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "a b+c", r.Form.Get("scope"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("form received"))
	}))
	defer server.Close()

	client := New(nil)
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("scope", "a b+c")

	resp, err := client.PostForm(context.Background(), server.URL, form)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "form received", resp.String())
}

func TestClientErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(nil)
	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, attempts)
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("server error"))
		} else {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("success"))
		}
	}))
	defer server.Close()

	config := &Config{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	}
	client := New(config)

	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, resp.OK())
}

func TestRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	config := &Config{
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	}
	client := New(config)

	_, err := client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "2 attempts")
}

func TestTimeoutHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config := &Config{
		Timeout:    50 * time.Millisecond,
		MaxRetries: 0,
	}
	client := New(config)

	_, err := client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	if !strings.Contains(err.Error(), "timeout") && !strings.Contains(err.Error(), "deadline") {
		t.Errorf("expected timeout-related error, got: %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, server.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestJSONEmptyBody(t *testing.T) {
	resp := &Response{StatusCode: http.StatusOK}
	var v map[string]interface{}
	err := resp.JSON(&v)
	require.Error(t, err)
}
