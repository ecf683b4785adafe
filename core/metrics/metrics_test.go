package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStoreCountsByStatus(t *testing.T) {
	okBefore := testutil.ToFloat64(storeOperations.WithLabelValues("test_op", "ok"))
	failBefore := testutil.ToFloat64(storeOperations.WithLabelValues("test_op", "fail"))

	ObserveStore("test_op", nil, time.Millisecond)
	ObserveStore("test_op", nil, time.Millisecond)
	ObserveStore("test_op", errors.New("boom"), time.Millisecond)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(storeOperations.WithLabelValues("test_op", "ok")))
	assert.Equal(t, failBefore+1, testutil.ToFloat64(storeOperations.WithLabelValues("test_op", "fail")))
}

func TestSessionsEvictedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(sessionsEvicted)
	SessionsEvicted(0)
	SessionsEvicted(3)
	assert.Equal(t, before+3, testutil.ToFloat64(sessionsEvicted))
}

func TestMessageSentLabels(t *testing.T) {
	before := testutil.ToFloat64(messagesSent.WithLabelValues("true"))
	MessageSent(true)
	assert.Equal(t, before+1, testutil.ToFloat64(messagesSent.WithLabelValues("true")))
}

func TestPanicAndRateLimitCounters(t *testing.T) {
	panicsBefore := testutil.ToFloat64(panics)
	limitedBefore := testutil.ToFloat64(rateLimited.WithLabelValues("message"))

	PanicRecovered()
	RateLimited("message")
	RateLimited("message")

	assert.Equal(t, panicsBefore+1, testutil.ToFloat64(panics))
	assert.Equal(t, limitedBefore+2, testutil.ToFloat64(rateLimited.WithLabelValues("message")))
}
