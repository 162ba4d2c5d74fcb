package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, req *http.Request) (visitor, tab string, rec *httptest.ResponseRecorder) {
	t.Helper()
	rec = httptest.NewRecorder()
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		visitor = VisitorIDFromContext(r.Context())
		tab = TabIDFromContext(r.Context())
	}))
	h.ServeHTTP(rec, req)
	return visitor, tab, rec
}

func TestMiddlewareIssuesVisitorCookie(t *testing.T) {
	visitor, tab, rec := serve(t, httptest.NewRequest(http.MethodGet, "/ws/widget", nil))

	assert.True(t, isValidVisitorID(visitor))
	assert.Equal(t, DefaultTabIDValue, tab)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, VisitorCookieName, cookies[0].Name)
	assert.Equal(t, visitor, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	const id = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	req := httptest.NewRequest(http.MethodGet, "/ws/widget?tab=tab-2", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: id})

	visitor, tab, _ := serve(t, req)
	assert.Equal(t, id, visitor)
	assert.Equal(t, "tab-2", tab)
}

func TestMiddlewareReplacesInvalidCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: "../../etc"})

	visitor, _, _ := serve(t, req)
	assert.NotEqual(t, "../../etc", visitor)
	assert.True(t, isValidVisitorID(visitor))
}

func TestTabHeaderWinsOverQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?tab=query-tab", nil)
	req.Header.Set(TabHeaderName, "header-tab")

	_, tab, _ := serve(t, req)
	assert.Equal(t, "header-tab", tab)
}

func TestSanitizeTabID(t *testing.T) {
	assert.Equal(t, DefaultTabIDValue, sanitizeTabID(""))
	assert.Equal(t, DefaultTabIDValue, sanitizeTabID("has spaces"))
	assert.Equal(t, "abc-123", sanitizeTabID(" abc-123 "))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", IPFromRequest(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", IPFromRequest(req))
}
