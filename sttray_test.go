package sttray

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacadeLifecycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sleep")
	}
	s := NewSupervisor(Spec{Name: "facade", Command: "sleep", Args: []string{"30"}}, nil)
	t.Cleanup(s.Shutdown)

	msg, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, "STT daemon started successfully", msg)
	assert.True(t, s.Status())
	assert.Positive(t, s.Info().PID)

	_, err = s.Start()
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	_, err = s.Stop()
	require.NoError(t, err)
	_, err = s.Stop()
	assert.True(t, errors.Is(err, ErrNotRunning))
}

func TestFacadeSpawnError(t *testing.T) {
	s := NewSupervisor(Spec{Command: "/definitely/not/here"}, nil)
	_, err := s.Start()
	var serr *SpawnError
	require.ErrorAs(t, err, &serr)
}

func TestFacadeRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewSupervisor(Spec{Command: "true"}, nil)
	h := NewRouter(s, NewBus(), "/x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://127.0.0.1/x/invoke/get_stt_status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false\n", rec.Body.String())
}

func TestRegisterMetrics(t *testing.T) {
	require.NoError(t, RegisterMetrics(prometheus.NewRegistry()))
}
