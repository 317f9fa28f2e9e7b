package logsvc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

func TestRollbarLogger_write(t *testing.T) {
	conf := core.NewTestConfig()
	buf := new(bytes.Buffer)
	logger := NewRollbarLogger(NewZerolog(buf, conf), conf)

	usr := user.User{ID: "u1", Name: "Jane", Email: "jane@example.com"}
	logger.Warn("approving enrollment", errors.New("boom"), map[string]interface{}{"course_id": "c1"}, usr)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "approving enrollment", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "c1", line["course_id"])
	assert.Equal(t, "u1", line["user_id"])
	assert.Equal(t, "TEST", line["env"])
}

func TestRollbarLogger_level(t *testing.T) {
	conf := core.NewTestConfig()
	buf := new(bytes.Buffer)
	logger := NewRollbarLogger(NewZerolog(buf, conf), conf)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}
