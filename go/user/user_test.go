package user

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/models"
	"github.com/lunixbochs/exocorn/go/proc"
)

func boot(t *testing.T, names ...string) (*kernel.Kernel, string) {
	out := &bytes.Buffer{}
	config := models.DefaultConfig()
	config.NPages = 256
	k, err := kernel.New(config, kernel.WithConsole(&kernel.BufConsole{W: out}))
	require.NoError(t, err)
	m := proc.New(k, nil)
	Register(m)
	for _, name := range names {
		_, err := m.Spawn(name)
		require.NoError(t, err)
	}
	require.NoError(t, m.Run(context.Background()))
	return k, out.String()
}

func lines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func TestHello(t *testing.T) {
	k, out := boot(t, "hello")
	assert.Equal(t, "hello, world\ni am environment 00001000\n", out)
	assert.Empty(t, k.Envs())
	assert.Equal(t, k.Pool().Size(), k.Pool().Free())
}

func TestEcho(t *testing.T) {
	out := &bytes.Buffer{}
	console := &kernel.BufConsole{W: out}
	console.Feed([]byte("one\ntwo"))
	k, err := kernel.New(models.DefaultConfig(), kernel.WithConsole(console))
	require.NoError(t, err)
	m := proc.New(k, nil)
	Register(m)
	_, err = m.Spawn("echo")
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, "one\ntwo\n", out.String())
}

func TestUptime(t *testing.T) {
	out := &bytes.Buffer{}
	now := time.Unix(1000, 0)
	clock := func() time.Time {
		now = now.Add(250 * time.Millisecond)
		return now
	}
	k, err := kernel.New(models.DefaultConfig(), kernel.WithConsole(&kernel.BufConsole{W: out}), kernel.WithClock(clock))
	require.NoError(t, err)
	m := proc.New(k, nil)
	Register(m)
	_, err = m.Spawn("uptime")
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, "up 250 ms\n", out.String())
}

func TestYieldInterleaves(t *testing.T) {
	_, out := boot(t, "yield", "yield")
	want := []string{
		"Hello, I am environment 00001000.",
		"Hello, I am environment 00001001.",
	}
	for i := 0; i < 4; i++ {
		want = append(want,
			fmt.Sprintf("Back in environment 00001000, iteration %d.", i),
			fmt.Sprintf("Back in environment 00001001, iteration %d.", i),
		)
	}
	// the last iteration runs straight through to the end
	want = append(want,
		"Back in environment 00001000, iteration 4.",
		"All done in environment 00001000.",
		"Back in environment 00001001, iteration 4.",
		"All done in environment 00001001.",
	)
	assert.Equal(t, want, lines(out))
}

func TestBuggyHello(t *testing.T) {
	k, out := boot(t, "buggyhello")
	assert.Equal(t, "", out)
	assert.Empty(t, k.Envs())
	assert.Equal(t, 1.0, testutil.ToFloat64(k.Metrics().Faults))
}

func TestPingPong(t *testing.T) {
	k, out := boot(t, "pingpong")
	got := lines(out)
	require.Len(t, got, 12)
	assert.Equal(t, "send 0 from 00001000 to 00001001", got[0])
	assert.Equal(t, "00001001 got 0 from 00001000", got[1])
	assert.Equal(t, "00001000 got 1 from 00001001", got[2])
	assert.Equal(t, "00001001 got 10 from 00001000", got[11])
	assert.Empty(t, k.Envs())
	assert.Equal(t, k.Pool().Size(), k.Pool().Free())
}

func TestPrimes(t *testing.T) {
	k, out := boot(t, "primes")
	assert.Equal(t, []string{"2", "3", "5", "7", "11", "13", "17", "19", "23", "29"}, lines(out))
	assert.Empty(t, k.Envs())
}

func TestSendPage(t *testing.T) {
	_, out := boot(t, "sendpage")
	assert.Equal(t, []string{
		"00001000 got message: hello child environment! how are you?",
		"child received correct message",
		"00001001 got message: hello parent environment! I'm good.",
		"parent received correct message",
	}, lines(out))
}
