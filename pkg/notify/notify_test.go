package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/mcclellann/saccoLoan/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter(&buf, "info", "json")
	defer logger.Initialize("info", "text")

	n := NewLogNotifier()
	n.Notify(context.Background(), "Payment recorded successfully", models.SeveritySuccess)
	n.Notify(context.Background(), "Receipt printer offline", models.SeverityWarning)

	out := buf.String()
	assert.Contains(t, out, `"level":"INFO","msg":"Payment recorded successfully"`)
	assert.Contains(t, out, `"level":"WARN","msg":"Receipt printer offline"`)
	assert.Contains(t, out, `"service":"notify"`)
}
