package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	defer func() {
		require.NoError(t, Configure("info", FormatText, os.Stderr))
	}()

	var buf bytes.Buffer
	require.NoError(t, Configure("debug", FormatJSON, &buf))
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	DebugWithFields("fetched", map[string]interface{}{"job_id": "job-1"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fetched", line["msg"])
	assert.Equal(t, "job-1", line["job_id"])

	buf.Reset()
	require.NoError(t, Configure("WARN", "", nil))
	Infof("dropped")
	assert.Empty(t, buf.String())
}

func TestConfigureInvalid(t *testing.T) {
	assert.Error(t, Configure("loud", "", nil))
	assert.Error(t, Configure("", "xml", nil))
}
