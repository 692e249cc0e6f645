package script

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/exocorn/go/kernel"
	"github.com/lunixbochs/exocorn/go/models"
)

func TestRunGrantScript(t *testing.T) {
	s, err := Load("testdata/grant.yaml")
	require.NoError(t, err)
	k, err := kernel.New(models.DefaultConfig())
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := Run(k, s, &out)
	require.NoError(t, err, out.String())
	assert.Equal(t, 9, res.Steps)
	assert.Equal(t, 0, res.Failures, out.String())

	buf := make([]byte, 5)
	require.NoError(t, k.UserRead(0x1001, 0x600010, buf))
	assert.Equal(t, "hello", string(buf))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 9)
	assert.Contains(t, lines[0], "ipc_recv(0x600000) = blocked: ok")
	assert.Contains(t, lines[4], "= E_IPC_NOT_RECV: ok")
}

func TestVarsWord(t *testing.T) {
	v := Vars{"x": 0x1001}
	for in, want := range map[interface{}]uint32{
		"$x":               0x1001,
		"NOPAGE":           models.NoPage,
		"UTEXT+0x1000":     models.UTEXT + 0x1000,
		"PTE_P|PTE_U":      uint32(models.PTE_P | models.PTE_U),
		"ENV_NOT_RUNNABLE": uint32(models.ENV_NOT_RUNNABLE),
		8388608:            0x800000,
		"0x10":             0x10,
	} {
		got, err := v.Word(in)
		require.NoError(t, err, "%v", in)
		assert.Equal(t, want, got, "%v", in)
	}
	_, err := v.Word("$missing")
	assert.Error(t, err)
}

func TestExpectMismatchCounts(t *testing.T) {
	s, err := Parse([]byte(`
envs: [a]
steps:
  - env: a
    call: page_alloc
    args: [0, 0x800001, PTE_P|PTE_U]
    expect: 0
  - env: a
    call: sys_getenvid
    args: []
    expect: $a
`))
	require.NoError(t, err)
	k, err := kernel.New(models.DefaultConfig())
	require.NoError(t, err)
	var out bytes.Buffer
	res, err := Run(k, s, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failures)
	assert.Contains(t, out.String(), "= E_INVAL: FAIL: want 0")
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("steps: []"))
	assert.Error(t, err)

	s, err := Parse([]byte("envs: [a]\nsteps:\n  - env: a\n    call: page_alloc\n    args: [0]\n"))
	require.NoError(t, err)
	k, err := kernel.New(models.DefaultConfig())
	require.NoError(t, err)
	_, err = Run(k, s, &bytes.Buffer{})
	assert.Error(t, err)
}
