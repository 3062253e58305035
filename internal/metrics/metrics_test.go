package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		ObserveHTTP("test_endpoint", "200", 10*time.Millisecond)
	})
}

func TestBookingCounters(t *testing.T) {
	Register()

	before := testutil.ToFloat64(BookingAttempts.WithLabelValues("created"))
	IncBookingAttempt("created")
	assert.Equal(t, before+1, testutil.ToFloat64(BookingAttempts.WithLabelValues("created")))

	retries := testutil.ToFloat64(AllocationRetries)
	IncAllocationRetry()
	assert.Equal(t, retries+1, testutil.ToFloat64(AllocationRetries))

	IncTransition("confirmed", "payment")
	assert.GreaterOrEqual(t, testutil.ToFloat64(StatusTransitions.WithLabelValues("confirmed", "payment")), 1.0)

	IncOutbox("done")
	assert.GreaterOrEqual(t, testutil.ToFloat64(OutboxDelivered.WithLabelValues("done")), 1.0)
}
