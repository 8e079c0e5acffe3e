package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	logTest "github.com/sirupsen/logrus/hooks/test"

	"github.com/zfdang/enclave-lottery-app-sub000/runtime"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

func TestLifecycle(t *testing.T) {
	hook := logTest.NewGlobal()
	service := NewService("127.0.0.1:0", runtime.NewServiceRegistry())

	service.Start()
	require.LogsContain(t, hook, "Starting service")

	require.NoError(t, service.Stop())
	require.LogsContain(t, hook, "Stopping service")
}

func TestHealthz_EmptyRegistryIsOK(t *testing.T) {
	service := NewService("127.0.0.1:0", runtime.NewServiceRegistry())

	rec := httptest.NewRecorder()
	service.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus_ReflectsListenerFailure(t *testing.T) {
	service := NewService("127.0.0.1:0", runtime.NewServiceRegistry())
	require.NoError(t, service.Status())
}
