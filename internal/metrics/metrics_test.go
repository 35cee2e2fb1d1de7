package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	ctx := context.Background()
	r.Observe(ctx, "insert", true, time.Millisecond)
	r.Observe(ctx, "insert", true, time.Millisecond)
	r.Observe(ctx, "flush", false, time.Second)
	r.Observe(ctx, "", true, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("flush", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.operations.WithLabelValues("flush", "success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"larder_operations_total", "larder_operation_duration_seconds"}, familyNames(families))
}

func familyNames(families []*dto.MetricFamily) []string {
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}

func TestRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestRecorderPrivateRegistry(t *testing.T) {
	a, err := NewRecorder(nil)
	require.NoError(t, err)
	b, err := NewRecorder(nil)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
