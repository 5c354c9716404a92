// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureOnce(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test-svc", RunID: "run-1"})

	// A second Configure must not replace the writer.
	Configure(Config{Service: "other"})

	logger := WithComponent("unit")
	logger.Info().Str("event", "test.logged").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "test-svc", entry["service"])
	require.Equal(t, "unit", entry["component"])
	require.Equal(t, "run-1", entry["run_id"])
	require.Equal(t, "test.logged", entry["event"])
}

func TestDerive(t *testing.T) {
	l := Derive(nil)
	l.Debug().Msg("derive with nil builder must not panic")
}
