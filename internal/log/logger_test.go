package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithComponentAddsFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "medtrans-test"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("booking")
	l.Info().Int64("booking_id", 7).Msg("claimed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "medtrans-test", line["service"])
	require.Equal(t, "booking", line["component"])
	require.Equal(t, "claimed", line["message"])
	require.EqualValues(t, 7, line["booking_id"])
}
