package common

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumwatch-go/internal/model"
)

func TestResolveLink(t *testing.T) {
	base, err := url.Parse("https://forum.example/latest?page=2")
	require.NoError(t, err)

	tests := []struct {
		name string
		href string
		want string
	}{
		{name: "host relative", href: "/t/42", want: "https://forum.example/t/42"},
		{name: "absolute external", href: "https://other.example/x", want: "https://other.example/x"},
		{name: "relative without slash kept", href: "t/42", want: "t/42"},
		{name: "query kept", href: "/t/42?u=me", want: "https://forum.example/t/42?u=me"},
		{name: "protocol relative stays on site host", href: "//evil.example/x", want: "https://forum.example//evil.example/x"},
		{name: "dot segments not cleaned", href: "/t/../admin", want: "https://forum.example/t/../admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLink(base, tt.href))
		})
	}
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	got := Dedupe([]model.Topic{
		{Title: "A", Link: "https://forum.example/t/1"},
		{Title: "B", Link: "https://forum.example/t/2"},
		{Title: "A again", Link: "https://forum.example/t/1"},
	})

	assert.Equal(t, []model.Topic{
		{Title: "A", Link: "https://forum.example/t/1"},
		{Title: "B", Link: "https://forum.example/t/2"},
	}, got)
}

func TestFetchBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	body, err := FetchBody(context.Background(), srv.Client(), srv.URL+"/latest", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(body))

	_, err = FetchBody(context.Background(), srv.Client(), srv.URL+"/missing", time.Second)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestFetchBodyRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := maxBodyBytes
		if r.URL.Path == "/huge" {
			size++
		}
		_, _ = w.Write(bytes.Repeat([]byte("a"), size))
	}))
	defer srv.Close()

	body, err := FetchBody(context.Background(), srv.Client(), srv.URL+"/limit", 5*time.Second)
	require.NoError(t, err)
	assert.Len(t, body, maxBodyBytes)

	_, err = FetchBody(context.Background(), srv.Client(), srv.URL+"/huge", 5*time.Second)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}
