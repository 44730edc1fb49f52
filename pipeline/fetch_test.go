package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babyforge/babyforge/types"
)

func TestFetchDataURL(t *testing.T) {
	f := NewFetcher()

	data, ct, err := f.Fetch(context.Background(), "data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, "image/png", ct)

	_, _, err = f.Fetch(context.Background(), "data:image/png;base64")
	assert.True(t, types.IsCode(err, types.ErrDecode))

	_, _, err = f.Fetch(context.Background(), "data:image/png;base64,!!!")
	assert.True(t, types.IsCode(err, types.ErrDecode))
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher()

	data, ct, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg bytes"), data)
	assert.Equal(t, "image/jpeg", ct)

	_, _, err = f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTransport))

	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusNotFound, terr.HTTPStatus)
}
