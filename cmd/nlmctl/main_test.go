package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/infra/codec"
	"distributed-nlm/internal/infra/memory"
	"distributed-nlm/internal/nlm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localDial serves every command from one in-memory coordinator.
func localDial(t *testing.T) (dialFunc, *[]string) {
	t.Helper()
	c := nlm.NewCoordinator(memory.NewCoordination(), codec.JSON{}, slog.New(slog.NewTextHandler(io.Discard, nil)), nlm.Options{})
	require.NoError(t, c.Init(context.Background()))
	var addrs []string
	return func(addr string) (domain.LockManager, func() error, error) {
		addrs = append(addrs, addr)
		return c, func() error { return nil }, nil
	}, &addrs
}

func run(dial dialFunc, args ...string) (string, error) {
	cmd := newRootCmd(dial)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNlmctl_LockLifecycle(t *testing.T) {
	dial, addrs := localDial(t)
	file := hex.EncodeToString([]byte("file1"))

	out, err := run(dial, "lock", file, "owner1", "0", "10", "--addr", "nlmd-1:9090")
	require.NoError(t, err)
	assert.Equal(t, "result=granted\n", out)
	assert.Equal(t, []string{"nlmd-1:9090"}, *addrs)

	out, err = run(dial, "test", file, "owner2", "5", "10")
	assert.ErrorIs(t, err, domain.ErrLockDenied)
	assert.Equal(t, "result=denied\n", out)

	out, err = run(dial, "list", file)
	require.NoError(t, err)
	assert.Contains(t, out, nlm.LockPrefix)
	assert.Contains(t, out, "holder="+hex.EncodeToString([]byte("owner1")))

	out, err = run(dial, "unlock", file, hex.EncodeToString([]byte("owner1")), "0", "10", "--holder-hex")
	require.NoError(t, err)
	assert.Equal(t, "result=granted\n", out)

	out, err = run(dial, "unlock", file, "owner1", "0", "10")
	assert.ErrorIs(t, err, domain.ErrLockRangeUnavailable)
	assert.Equal(t, "result=unavailable\n", out)
}

func TestNlmctl_RejectsBadArguments(t *testing.T) {
	dial, _ := localDial(t)

	_, err := run(dial, "lock", "zz", "owner", "0", "1")
	assert.Error(t, err)
	_, err = run(dial, "lock", "AB", "owner", "-1", "1")
	assert.Error(t, err)
	_, err = run(dial, "lock", "AB", "owner", "0")
	assert.Error(t, err)
	_, err = run(dial, "lock", "AB", "not-hex", "0", "1", "--holder-hex")
	assert.Error(t, err)
}
