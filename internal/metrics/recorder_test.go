package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/sql-quality-checker/pkg/models"
)

func TestRecorderCountsFindings(t *testing.T) {
	r := NewRecorder("dq")

	r.FieldStarted("Customers")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeFields))

	r.FieldDone("Customers", "Email", 20*time.Millisecond, []models.Finding{
		{CheckType: "null_check", Status: models.StatusPass, Severity: models.SeverityInfo},
		{CheckType: "email_check", Status: models.StatusFail, Severity: models.SeverityMedium},
	})

	assert.Equal(t, 0.0, testutil.ToFloat64(r.activeFields))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fieldsTotal.WithLabelValues("Customers", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.findingsTotal.WithLabelValues("email_check", "FAIL", "MEDIUM")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.findingsTotal.WithLabelValues("null_check", "PASS", "INFO")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.fieldDuration))
}

func TestFieldOutcome(t *testing.T) {
	assert.Equal(t, "pass", fieldOutcome(nil))
	assert.Equal(t, "skipped", fieldOutcome([]models.Finding{
		{CheckType: models.CheckTypeDataExistence, Status: models.StatusWarning},
	}))
	assert.Equal(t, "error", fieldOutcome([]models.Finding{
		{CheckType: models.CheckTypeExecutionError, Status: models.StatusError},
	}))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder("dq")
	r.FieldStarted("Orders")
	r.FieldDone("Orders", "OrderDate", time.Millisecond, nil)
	r.RunDone(models.Summary{SuccessRate: 87.5})

	path := filepath.Join(t.TempDir(), "dq.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dq_fields_evaluated_total{outcome="pass",table="Orders"} 1`)
	assert.Contains(t, string(data), "dq_last_run_success_rate 87.5")

	assert.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dq.prom")))
}
