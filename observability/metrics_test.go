package observability

import (
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"tiersale/core/events"
)

func TestEventsCountTransfers(t *testing.T) {
	emitted := Events().emitted.WithLabelValues(events.TypeTransfer)
	transfers := Events().transfers.WithLabelValues("USDC")
	collected := Presale().collected.WithLabelValues("USDC")
	beforeEmitted := testutil.ToFloat64(emitted)
	beforeTransfers := testutil.ToFloat64(transfers)
	beforeCollected := testutil.ToFloat64(collected)

	Events().Emit(events.Transfer{Asset: " usdc ", Amount: big.NewInt(250)})
	Events().Emit(nil)

	require.Equal(t, beforeEmitted+1, testutil.ToFloat64(emitted))
	require.Equal(t, beforeTransfers+1, testutil.ToFloat64(transfers))
	require.Equal(t, beforeCollected+250, testutil.ToFloat64(collected))
}

func TestModuleMetricsObserve(t *testing.T) {
	ok := ModuleMetrics().requests.WithLabelValues("quote", http.MethodGet, "success")
	failed := ModuleMetrics().errors.WithLabelValues("quote", http.MethodGet, "422")
	beforeOK := testutil.ToFloat64(ok)
	beforeFailed := testutil.ToFloat64(failed)

	ModuleMetrics().Observe("quote", http.MethodGet, http.StatusOK, time.Millisecond)
	ModuleMetrics().Observe("quote", http.MethodGet, http.StatusUnprocessableEntity, time.Millisecond)

	require.Equal(t, beforeOK+1, testutil.ToFloat64(ok))
	require.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))

	throttled := ModuleMetrics().throttles.WithLabelValues("unknown", "unspecified")
	before := testutil.ToFloat64(throttled)
	ModuleMetrics().RecordThrottle("", "")
	require.Equal(t, before+1, testutil.ToFloat64(throttled))
}

func TestPresaleProgress(t *testing.T) {
	Presale().SetProgress(42, 4)
	require.Equal(t, float64(42), testutil.ToFloat64(Presale().unitsSold))
	require.Equal(t, float64(4), testutil.ToFloat64(Presale().currentTier))

	var nilMetrics *PresaleMetrics
	nilMetrics.RecordConflict()
	nilMetrics.SetProgress(1, 1)
}
