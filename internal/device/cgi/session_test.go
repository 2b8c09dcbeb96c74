package cgi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/router-sms-gateway/internal/device"
)

func staticLogin(id string) LoginFunc {
	return func(context.Context) (string, error) { return id, nil }
}

func TestCommand(t *testing.T) {
	t.Parallel()
	require.Equal(t,
		"[LTE_SMS_SENDNEWMSG#0,0,0,0,0,0#0,0,0,0,0,0]0,3\nindex=1\nto=+15551234567\ntextContent=hello",
		Command("+15551234567", "hello"),
	)
}

func TestCommandKeepsFieldsOnOneLine(t *testing.T) {
	t.Parallel()
	cmd := Command("+1555\n", "hi\r\nto=+19990000000\nindex=2\rbye")

	lines := strings.Split(cmd, "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "to=+1555 ", lines[2])
	require.Equal(t, "textContent=hi to=+19990000000 index=2 bye", lines[3])
}

func TestSendPostsCommandWithCookie(t *testing.T) {
	t.Parallel()

	var (
		mu                                    sync.Mutex
		gotPath, gotQuery, gotCookie, gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCookie = r.Header.Get("Cookie")
		gotBody = string(b)
		mu.Unlock()
		_, _ = io.WriteString(w, "[error]0")
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL + "/"}, staticLogin("abc123"), nil)
	ctx := context.Background()
	require.NoError(t, s.Login(ctx))
	require.NoError(t, s.NavigateToCompose(ctx))
	require.NoError(t, s.Send(ctx, "+15551234567", "hello"))

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, "/cgi", gotPath)
	require.Equal(t, "2", gotQuery)
	require.Equal(t, "JSESSIONID=abc123", gotCookie)
	require.Equal(t, Command("+15551234567", "hello"), gotBody)
}

func TestSendNon200IsFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL}, staticLogin("abc123"), nil)
	require.NoError(t, s.Login(context.Background()))

	err := s.Send(context.Background(), "+1", "x")
	require.ErrorIs(t, err, device.ErrSendFailed)
	require.Contains(t, err.Error(), "status 403")
}

func TestSendRequiresLogin(t *testing.T) {
	t.Parallel()
	s := New(Config{BaseURL: "http://127.0.0.1:1"}, staticLogin("abc"), nil)
	require.ErrorIs(t, s.Send(context.Background(), "+1", "x"), device.ErrSendFailed)

	require.NoError(t, s.Login(context.Background()))
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Send(context.Background(), "+1", "x"), errNoSession)
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	s := New(Config{BaseURL: "http://r"}, func(context.Context) (string, error) {
		return "", errors.New("cookie JSESSIONID not set")
	}, nil)
	require.ErrorIs(t, s.Login(context.Background()), device.ErrLoginFailed)

	s = New(Config{BaseURL: "http://r"}, staticLogin(""), nil)
	require.ErrorIs(t, s.Login(context.Background()), device.ErrLoginFailed)

	wrapped := device.LoginError(errors.New("password field"))
	s = New(Config{BaseURL: "http://r"}, func(context.Context) (string, error) { return "", wrapped }, nil)
	require.Equal(t, wrapped, s.Login(context.Background()))
}
