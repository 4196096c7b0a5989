package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "fatal", SeverityFatal.String())
	assert.Equal(t, "unknown", Severity(42).String())
}

func TestOrderNotFound(t *testing.T) {
	err := NewOrderNotFoundError("PO-0042")

	assert.Equal(t, `[error] ORDER_NOT_FOUND: Purchase order "PO-0042" not found (order: PO-0042)`, err.Error())
	assert.True(t, stderrors.Is(err, ErrOrderNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("approve: %w", err)))
	assert.False(t, stderrors.Is(err, ErrUnsupportedIntent))

	var ie *InsightError
	require.True(t, stderrors.As(fmt.Errorf("wrapped: %w", err), &ie))
	assert.Equal(t, "PO-0042", ie.OrderID)
}

func TestSourceError(t *testing.T) {
	err := NewSourceError("s3://bucket/orders.json", io.ErrUnexpectedEOF)

	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	var ie *InsightError
	require.True(t, stderrors.As(err, &ie))
	assert.Equal(t, ErrCodeSourceFailed, ie.Code)
	assert.False(t, IsNotFound(err))
}

func TestInsightErrorJSON(t *testing.T) {
	data, err := json.Marshal(NewUnsupportedIntentError("forecast"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"UNSUPPORTED_INTENT","message":"No explanation template for intent: forecast","severity":"warning","recoverable":true}`, string(data))
}
