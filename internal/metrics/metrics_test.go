package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Counters(t *testing.T) {
	c, _ := NewCollector()

	c.ClaimGranted(false)
	c.ClaimGranted(true)
	c.ClaimDenied()
	c.ItemProcessed()
	c.ItemFailed()
	c.ItemBlacklisted()
	c.RetriesScheduled(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.claimsGranted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.takeovers))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.claimsDenied))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.blacklisted))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.retries))
}

func TestCollector_LeasesHeldGauge(t *testing.T) {
	c, _ := NewCollector()

	c.SetLeasesHeld(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.leasesHeld))
	c.SetLeasesHeld(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.leasesHeld))
}

func TestCollector_PrivateRegistry(t *testing.T) {
	// Two collectors must not collide on registration.
	_, reg1 := NewCollector()
	c2, _ := NewCollector()

	c2.ObserveItemDuration(90 * time.Second)

	families, err := reg1.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
