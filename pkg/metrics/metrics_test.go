package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/savekeeper/savekeeper/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBackup(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordBackup("auto", true, 50*time.Millisecond)
	r.RecordBackup("auto", true, 10*time.Millisecond)
	r.RecordBackup("keeper", false, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.BackupsTotal.WithLabelValues("auto", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.BackupsTotal.WithLabelValues("keeper", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.BackupDuration))
}

func TestRecordRestore(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordRestore(true, true, time.Millisecond)
	r.RecordRestore(true, false, time.Millisecond)
	r.RecordRestore(false, false, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.RestoresTotal.WithLabelValues("restored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RestoresTotal.WithLabelValues("unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RestoresTotal.WithLabelValues("error")))
}

func TestRecordRetention(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordRetention(map[string]int{"temp": 2, "auto": 1}, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.RetentionDeleted.WithLabelValues("temp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RetentionDeleted.WithLabelValues("auto")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RetentionRenamed))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := metrics.NewRegistry()
	b := metrics.NewRegistry()
	a.RecordSkip()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.BackupsSkipped))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BackupsSkipped))
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, metrics.Default(), metrics.Default())
}

func TestHandler(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordScreenshot(true)
	r.RecordWatchEvent("change")
	r.RecordHash(time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `savekeeper_screenshot_total{status="success"} 1`))
	assert.True(t, strings.Contains(body, `savekeeper_watch_events_total{result="change"} 1`))
}
