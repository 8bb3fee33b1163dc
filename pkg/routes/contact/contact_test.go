package contact_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contactrepo "github.com/Ramsey-B/clover/internal/repositories/contact"
	"github.com/Ramsey-B/clover/pkg/identity"
	"github.com/Ramsey-B/clover/pkg/inject"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/contact"
)

func str(s string) *string { return &s }

func newServer(t *testing.T) *echo.Echo {
	t.Helper()

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := contactrepo.NewMemoryStore()
	svc := identity.NewService(logger, store, store, identity.DefaultConfig())

	_, err := svc.Identify(context.Background(), str("a@x.com"), str("111"))
	require.NoError(t, err)
	_, err = svc.Identify(context.Background(), str("b@x.com"), str("111"))
	require.NoError(t, err)

	container, err := inject.NewContainer(logger)
	require.NoError(t, err)
	require.NoError(t, ectoinject.RegisterInstance[*identity.Service](container, svc))

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Container(container.GetContainerID()))
	contact.Register(e.Group("/api/v1/contacts"))
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGet(t *testing.T) {
	e := newServer(t)

	for _, path := range []string{"/api/v1/contacts/1", "/api/v1/contacts/2"} {
		rec := get(e, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"contact":{
			"primaryContactId":1,
			"emails":["a@x.com","b@x.com"],
			"phoneNumbers":["111"],
			"secondaryContactIds":[2]
		}}`, rec.Body.String())
	}
}

func TestGet_Errors(t *testing.T) {
	e := newServer(t)

	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/contacts/42").Code)
	assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/contacts/abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(e, "/api/v1/contacts/0").Code)
}
