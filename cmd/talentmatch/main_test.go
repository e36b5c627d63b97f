package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRetryWithBackoff(t *testing.T) {
	log := zaptest.NewLogger(t)

	calls := 0
	err := retryWithBackoff(func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, 5, time.Millisecond, log, "PostgreSQL connection")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryWithBackoff(func() error {
		calls++
		return errors.New("connection refused")
	}, 2, time.Millisecond, log, "Redis connection")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "Redis connection failed after 2 attempts")
}

func TestRunAssignment_UnknownOperation(t *testing.T) {
	_, err := runAssignment(context.Background(), nil, "teleport", "m-1", "", "")
	assert.EqualError(t, err, `unknown assignment operation "teleport"`)
}

func TestRegisterCommands(t *testing.T) {
	registerCommands()
	defer rootCmd.ResetCommands()

	for _, name := range []string{"worker", "migrate", "sync-jira", "enqueue", "assignment", "evaluate-risk",
		"add-interest", "rate-interest"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
