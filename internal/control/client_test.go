package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, StaticToken("s3cret"), zap.NewNop().Sugar())
}

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"version":"1.18.0","meta":true}`))
	})

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, "1.18.0", v.Version)
	assert.True(t, v.Meta)
}

func TestEmptyTokenOmitsHeader(t *testing.T) {
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken(""), zap.NewNop().Sugar())
	_, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.False(t, hasAuth)
}

func TestTypedErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := c.GetConfigs(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestTransportFailureIsNotAuthFailure(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", StaticToken(""), zap.NewNop().Sugar())
	_, err := c.Version(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestSelectProxyEscapesGroupName(t *testing.T) {
	var gotPath, gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.SelectProxy(context.Background(), "节点选择/自动", "B")
	require.NoError(t, err)
	assert.Equal(t, "/proxies/"+url.PathEscape("节点选择/自动"), gotPath)
	assert.JSONEq(t, `{"name":"B"}`, gotBody)
}

func TestSwitchConfigRequiresAbsolutePath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.SwitchConfig(context.Background(), "relative/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute")
}

func TestSwitchConfigForcesReload(t *testing.T) {
	var gotQuery url.Values
	var gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SwitchConfig(context.Background(), "/data/abc.yaml"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "true", gotQuery.Get("force"))
}

func TestGetProxiesDecodesSelectors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"proxies":{
			"Proxy":{"name":"Proxy","type":"Selector","now":"A","all":["A","B"]},
			"A":{"name":"A","type":"Shadowsocks","udp":true}
		}}`))
	})

	proxies, err := c.GetProxies(context.Background())
	require.NoError(t, err)
	require.Len(t, proxies, 2)

	group := proxies["Proxy"]
	assert.True(t, group.IsSelector())
	assert.Equal(t, "A", group.Now)
	assert.Equal(t, []string{"A", "B"}, group.All)

	node := proxies["A"]
	assert.False(t, node.IsSelector())
}

func TestGetConnectionsTotals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"downloadTotal":1024,"uploadTotal":512,"connections":[
			{"id":"c1","metadata":{"host":"example.com","network":"tcp"}}
		]}`))
	})

	info, err := c.GetConnections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.DownloadTotal)
	assert.Equal(t, int64(512), info.UploadTotal)
	require.Len(t, info.Connections, 1)
	assert.Equal(t, "example.com", info.Connections[0].Metadata.Host)
}

func TestStreamURLCarriesToken(t *testing.T) {
	c := NewClient("http://127.0.0.1:9097", StaticToken("tok"), zap.NewNop().Sugar())

	raw := c.StreamURL("/logs", url.Values{"level": []string{"info"}})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "ws", u.Scheme)
	assert.Equal(t, "/logs", u.Path)
	assert.Equal(t, "tok", u.Query().Get("token"))
	assert.Equal(t, "info", u.Query().Get("level"))
}

func TestGroupDelayTestParams(t *testing.T) {
	var gotQuery url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{}`))
	})

	require.NoError(t, c.GroupDelayTest(context.Background(), "Proxy"))
	assert.Equal(t, "http://www.gstatic.com/generate_204", gotQuery.Get("url"))
	assert.Equal(t, "2000", gotQuery.Get("timeout"))
}
