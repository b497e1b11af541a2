package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayplan/plancache/errors"
)

func TestHTTPSource_Fetch(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[{"id":"g1"}]`))
	}))
	defer server.Close()

	source, err := NewHTTPSource(server.URL, time.Second,
		WithRequestDecorator(func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer token123")
		}))
	require.NoError(t, err)

	body, err := source.Fetch(context.Background(), "goals", "year=2024")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"g1"}]`, string(body))
	assert.Equal(t, "/goals", gotPath)
	assert.Equal(t, "year=2024", gotQuery)
	assert.Equal(t, "Bearer token123", gotAuth)
}

func TestHTTPSource_FetchStatusClassification(t *testing.T) {
	status := http.StatusInternalServerError
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	source, err := NewHTTPSource(server.URL, time.Second)
	require.NoError(t, err)

	// 5xx is worth retrying.
	_, err = source.Fetch(context.Background(), "habits", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRemoteFetch)
	assert.True(t, errors.IsTransient(err))

	// 4xx is not.
	status = http.StatusNotFound
	_, err = source.Fetch(context.Background(), "habits", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRemoteFetch)
	assert.True(t, errors.IsInvalid(err))
}

func TestHTTPSource_FetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	source, err := NewHTTPSource(server.URL, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = source.Fetch(context.Background(), "timeBlocks", "date=2024-01-15")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFetchTimeout)
	assert.True(t, errors.IsTransient(err))
}

func TestHTTPSource_Mutate(t *testing.T) {
	var gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Write([]byte(`{"id":"h1","confirmed":true}`))
	}))
	defer server.Close()

	source, err := NewHTTPSource(server.URL, time.Second)
	require.NoError(t, err)

	cases := []struct {
		op     OperationType
		method string
	}{
		{OpCreate, http.MethodPost},
		{OpUpdate, http.MethodPatch},
		{OpDelete, http.MethodDelete},
	}
	for _, tc := range cases {
		body, err := source.Mutate(context.Background(), "habits", tc.op, []byte(`{"id":"h1"}`))
		require.NoError(t, err, "op %s", tc.op)
		assert.Equal(t, tc.method, gotMethod)
		assert.Equal(t, `{"id":"h1"}`, gotBody)
		assert.Equal(t, `{"id":"h1","confirmed":true}`, string(body))
	}
}

func TestHTTPSource_MutateRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "validation failed", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	source, err := NewHTTPSource(server.URL, time.Second)
	require.NoError(t, err)

	_, err = source.Mutate(context.Background(), "goals", OpUpdate, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRemoteMutation)
	assert.True(t, errors.IsInvalid(err), "4xx rejection must not be retried")
}

func TestHTTPSource_MutateUnknownOp(t *testing.T) {
	source, err := NewHTTPSource("http://localhost:1", time.Second)
	require.NoError(t, err)

	_, err = source.Mutate(context.Background(), "goals", OperationType("upsert"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownOperationType)
}

func TestNewHTTPSource_Validation(t *testing.T) {
	_, err := NewHTTPSource("", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestOperationType_Valid(t *testing.T) {
	assert.True(t, OpCreate.Valid())
	assert.True(t, OpUpdate.Valid())
	assert.True(t, OpDelete.Valid())
	assert.False(t, OperationType("merge").Valid())
	assert.False(t, OperationType("").Valid())
}
