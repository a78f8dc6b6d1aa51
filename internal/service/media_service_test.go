package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifierAgainst(t *testing.T, handler http.HandlerFunc) MediaVerifier {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &mediaVerifierImpl{client: resty.New().SetBaseURL(srv.URL)}
}

func TestMediaVerify(t *testing.T) {
	v := newVerifierAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/internal/assets/ready-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"ready-1","status":"ready","ownerUserId":10}`))
		case "/internal/assets/pending-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"pending-1","status":"pending","ownerUserId":10}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	ok, err := v.Verify(ctx, "ready-1", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	// 归属不匹配
	ok, err = v.Verify(ctx, "ready-1", 99)
	require.NoError(t, err)
	assert.False(t, ok)

	// 未就绪
	ok, err = v.Verify(ctx, "pending-1", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	// 不存在
	ok, err = v.Verify(ctx, "ghost", 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMediaVerifyServerError(t *testing.T) {
	v := newVerifierAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ok, err := v.Verify(context.Background(), "any", 10)
	assert.Error(t, err)
	assert.False(t, ok)
}
