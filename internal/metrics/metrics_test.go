package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoreRequest(t *testing.T) {
	ok := testutil.ToFloat64(storeRequestsTotal.WithLabelValues("graph", "list", "success"))
	failed := testutil.ToFloat64(storeRequestsTotal.WithLabelValues("graph", "list", "error"))

	RecordStoreRequest("graph", "list", 10*time.Millisecond, nil)
	RecordStoreRequest("graph", "list", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, ok+1, testutil.ToFloat64(storeRequestsTotal.WithLabelValues("graph", "list", "success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(storeRequestsTotal.WithLabelValues("graph", "list", "error")))
}

func TestCacheAndBatchGauges(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	RecordCacheLookup(true)
	assert.Equal(t, hits+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")))

	SetCacheEntries(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(cacheEntries))

	inFlight := testutil.ToFloat64(batchesInFlight)
	BatchStarted()
	assert.Equal(t, inFlight+1, testutil.ToFloat64(batchesInFlight))
	BatchFinished(time.Second, 1200)
	assert.Equal(t, inFlight, testutil.ToFloat64(batchesInFlight))
	assert.Equal(t, 1200.0, testutil.ToFloat64(sceneVertices))
}

func TestRecordDownloadIgnoresEmpty(t *testing.T) {
	before := testutil.ToFloat64(bytesDownloaded)
	RecordDownload(0)
	RecordDownload(-3)
	assert.Equal(t, before, testutil.ToFloat64(bytesDownloaded))
	RecordDownload(512)
	assert.Equal(t, before+512, testutil.ToFloat64(bytesDownloaded))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordHTTPRequest(http.MethodGet, "/api/progress", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bimview_http_requests_total"))
}
