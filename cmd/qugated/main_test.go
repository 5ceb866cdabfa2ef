package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qugate/config"
	"qugate/core"
	"qugate/storage"
)

func TestStopEpochsJoinsLoopBeforeClose(t *testing.T) {
	node, err := core.NewNode(storage.NewMemDB(), config.DefaultGenesis())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	start := node.Epoch()

	stop := startEpochs(context.Background(), node, time.Millisecond, logger)
	require.Eventually(t, func() bool { return node.Epoch() > start }, time.Second, time.Millisecond)

	stop()
	stopped := node.Epoch()
	node.Close()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, stopped, node.Epoch())
}

func TestStartEpochsStopsWithParentContext(t *testing.T) {
	node, err := core.NewNode(storage.NewMemDB(), config.DefaultGenesis())
	require.NoError(t, err)
	defer node.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stop := startEpochs(ctx, node, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cancel()

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("epoch loop did not exit after cancellation")
	}
}
