package kernel

import (
	"bytes"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lunixbochs/exocorn/go/mem"
	"github.com/lunixbochs/exocorn/go/models"
)

const (
	pu  = models.PTE_P | models.PTE_U
	puw = models.PTE_P | models.PTE_U | models.PTE_W
)

func newKernel(t *testing.T, npages int, opts ...Option) *Kernel {
	config := models.DefaultConfig()
	config.NPages = npages
	config.Output = &bytes.Buffer{}
	k, err := New(config, opts...)
	require.NoError(t, err)
	return k
}

func spawn(t *testing.T, k *Kernel) models.EnvID {
	id, err := k.EnvCreate(models.UTEXT + 0x20)
	require.NoError(t, err)
	return id
}

func sys(t *testing.T, k *Kernel, caller models.EnvID, num Num, args ...uint32) int32 {
	ret, err := k.Syscall(caller, uint32(num), args...)
	require.NoError(t, err, "%s", num)
	return ret
}

func frameAt(t *testing.T, k *Kernel, id models.EnvID, va uint32) *mem.Frame {
	f, _, err := k.Lookup(id, va)
	require.NoError(t, err)
	return f
}

func TestEnvIDs(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	b := spawn(t, k)
	assert.Equal(t, models.EnvID(0x1000), a)
	assert.Equal(t, models.EnvID(0x1001), b)
	assert.Equal(t, int32(a), sys(t, k, a, SYS_GETENVID))

	// slot reuse gets a new generation, the old handle stops resolving
	require.NoError(t, k.Destroy(a))
	c := spawn(t, k)
	assert.Equal(t, models.EnvID(0x2000), c)
	assert.Equal(t, int32(models.E_BAD_ENV), sys(t, k, b, SYS_ENV_SET_PGFAULT_UPCALL, uint32(a), 0x1234))
	_, err := k.Syscall(a, uint32(SYS_GETENVID))
	assert.ErrorIs(t, err, ErrNoCaller)
}

func TestNoFreeEnv(t *testing.T) {
	config := models.DefaultConfig()
	config.NEnv = 2
	config.NPages = 16
	k, err := New(config)
	require.NoError(t, err)
	a := spawn(t, k)
	child := sys(t, k, a, SYS_EXOFORK)
	assert.True(t, child > 0)
	assert.Equal(t, int32(models.E_NO_FREE_ENV), sys(t, k, a, SYS_EXOFORK))
}

func TestCapabilityCheck(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	other := spawn(t, k)
	c := models.EnvID(sys(t, k, a, SYS_EXOFORK))
	d := models.EnvID(sys(t, k, c, SYS_EXOFORK))
	sibling := models.EnvID(sys(t, k, a, SYS_EXOFORK))

	tests := []struct {
		caller, target models.EnvID
		want           int32
	}{
		{a, 0, 0},
		{a, a, 0},
		{a, c, 0},
		{a, d, 0}, // grandchild
		{c, d, 0},
		{c, a, int32(models.E_BAD_ENV)},
		{c, sibling, int32(models.E_BAD_ENV)},
		{other, c, int32(models.E_BAD_ENV)},
		{a, 0x7fff, int32(models.E_BAD_ENV)},
	}
	for _, test := range tests {
		got := sys(t, k, test.caller, SYS_ENV_SET_PGFAULT_UPCALL, uint32(test.target), 0xdead)
		assert.Equal(t, test.want, got, "%s -> %s", test.caller, test.target)
	}
	env, _ := k.Env(d)
	assert.Equal(t, uint32(0xdead), env.Upcall)
}

func TestPageAllocBadPerm(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	before, _ := k.Mappings(a)
	for perm := models.Perm(0); perm < 0x20; perm++ {
		if perm.ValidUser() {
			continue
		}
		ret := sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, uint32(perm))
		assert.Equal(t, int32(models.E_INVAL), ret, "perm %s", perm)
	}
	after, _ := k.Mappings(a)
	assert.Equal(t, before, after)

	for _, va := range []uint32{models.UTEXT + 1, models.UTOP, models.ULIM, 0xffffffff} {
		assert.Equal(t, int32(models.E_INVAL), sys(t, k, a, SYS_PAGE_ALLOC, 0, va, uint32(pu)), "va %#x", va)
	}
	assert.Equal(t, int32(models.E_BAD_ENV), sys(t, k, a, SYS_PAGE_ALLOC, 0x5000, models.UTEXT, uint32(pu)))
}

func TestPageAllocReplaceAndZero(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, uint32(puw)))
	require.NoError(t, k.UserWrite(a, models.UTEXT, []byte("junk")))
	old := frameAt(t, k, a, models.UTEXT)
	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, uint32(puw)))
	assert.Equal(t, 0, old.Refs(), "replaced frame not released")
	tmp := make([]byte, 4)
	require.NoError(t, k.UserRead(a, models.UTEXT, tmp))
	assert.Equal(t, []byte{0, 0, 0, 0}, tmp)
}

func TestPageAllocNoLeak(t *testing.T) {
	// stack page and its page table leave one frame
	k := newKernel(t, 3)
	a := spawn(t, k)
	require.Equal(t, 1, k.Pool().Free())

	// the frame is allocated but the new page table is not
	ret := sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, uint32(puw))
	assert.Equal(t, int32(models.E_NO_MEM), ret)
	assert.Equal(t, 1, k.Pool().Free(), "frame leaked on failed insert")
	_, _, err := k.Lookup(a, models.UTEXT)
	assert.Error(t, err)

	// same region as the stack, no new table needed
	ret = sys(t, k, a, SYS_PAGE_ALLOC, 0, models.USTACKTOP-2*models.PGSIZE, uint32(puw))
	assert.Equal(t, int32(0), ret)
	assert.Equal(t, 0, k.Pool().Free())
	assert.Equal(t, int32(models.E_NO_MEM), sys(t, k, a, SYS_PAGE_ALLOC, 0, models.USTACKTOP-3*models.PGSIZE, uint32(puw)))
}

func TestPageMapNoMem(t *testing.T) {
	// stack page, its table, a frame at UTEXT and its table
	k := newKernel(t, 4)
	a := spawn(t, k)
	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, uint32(puw)))
	c := models.EnvID(sys(t, k, a, SYS_EXOFORK))
	require.Equal(t, 0, k.Pool().Free())
	f := frameAt(t, k, a, models.UTEXT)
	before, _ := k.Mappings(a)

	// the child has no page table for UTEXT and none can be allocated
	ret := sys(t, k, a, SYS_PAGE_MAP, 0, models.UTEXT, uint32(c), models.UTEXT, uint32(pu))
	assert.Equal(t, int32(models.E_NO_MEM), ret)
	assert.Equal(t, 1, f.Refs())
	assert.Equal(t, 0, k.Pool().Free())
	maps, _ := k.Mappings(c)
	assert.Empty(t, maps)
	after, _ := k.Mappings(a)
	assert.Equal(t, before, after)
}

func TestPageMap(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	c := models.EnvID(sys(t, k, a, SYS_EXOFORK))
	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, uint32(pu)))
	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT+models.PGSIZE, uint32(puw)))

	// no write escalation from a read-only source
	ret := sys(t, k, a, SYS_PAGE_MAP, 0, models.UTEXT, uint32(c), models.UTEXT, uint32(puw))
	assert.Equal(t, int32(models.E_INVAL), ret)
	maps, _ := k.Mappings(c)
	assert.Empty(t, maps)

	tests := []struct {
		srcva, dstva uint32
		perm         models.Perm
		want         models.Errno
	}{
		{models.UTEXT + 2*models.PGSIZE, models.UTEXT, pu, models.E_INVAL}, // nothing mapped
		{models.UTEXT + 1, models.UTEXT, pu, models.E_INVAL},
		{models.UTEXT, models.UTOP, pu, models.E_INVAL},
		{models.UTEXT, models.UTEXT, models.PTE_U, models.E_INVAL},
		{models.UTEXT, models.UTEXT, pu | 0x100, models.E_INVAL},
	}
	for _, test := range tests {
		ret := sys(t, k, a, SYS_PAGE_MAP, 0, test.srcva, uint32(c), test.dstva, uint32(test.perm))
		assert.Equal(t, int32(test.want), ret, "%#x -> %#x %s", test.srcva, test.dstva, test.perm)
	}
	maps, _ = k.Mappings(c)
	assert.Empty(t, maps)

	// writable source may be shared read-only or writable
	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_MAP, 0, models.UTEXT+models.PGSIZE, uint32(c), 0, uint32(pu)))
	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_MAP, 0, models.UTEXT+models.PGSIZE, uint32(c), models.PGSIZE, uint32(puw)))
	f := frameAt(t, k, a, models.UTEXT+models.PGSIZE)
	assert.Equal(t, f, frameAt(t, k, c, 0))
	assert.Equal(t, 3, f.Refs())

	require.NoError(t, k.UserWrite(c, models.PGSIZE, []byte("shared")))
	tmp := make([]byte, 6)
	require.NoError(t, k.UserRead(a, models.UTEXT+models.PGSIZE, tmp))
	assert.Equal(t, "shared", string(tmp))
}

func TestPageUnmapIdempotent(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	free := k.Pool().Free()
	assert.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_UNMAP, 0, models.UTEXT))
	assert.Equal(t, free, k.Pool().Free())

	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, uint32(pu)))
	assert.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_UNMAP, 0, models.UTEXT))
	once, _ := k.Mappings(a)
	freeOnce := k.Pool().Free()
	assert.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_UNMAP, 0, models.UTEXT))
	twice, _ := k.Mappings(a)
	assert.Equal(t, once, twice)
	assert.Equal(t, freeOnce, k.Pool().Free())

	assert.Equal(t, int32(models.E_INVAL), sys(t, k, a, SYS_PAGE_UNMAP, 0, models.UTEXT+8))
	assert.Equal(t, int32(models.E_BAD_ENV), sys(t, k, a, SYS_PAGE_UNMAP, 0x4321, models.UTEXT))
}

func TestExoforkTrapframe(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	child := models.EnvID(sys(t, k, a, SYS_EXOFORK))
	parent, _ := k.Env(a)
	env, ok := k.Env(child)
	require.True(t, ok)

	assert.Equal(t, a, env.Parent)
	assert.Equal(t, models.ENV_NOT_RUNNABLE, env.Status)
	assert.Equal(t, uint32(0), env.Tf.Regs.Eax)
	assert.Equal(t, uint32(child), parent.Tf.Regs.Eax)
	tf := env.Tf
	tf.Regs.Eax = parent.Tf.Regs.Eax
	assert.Equal(t, parent.Tf, tf)

	maps, _ := k.Mappings(child)
	assert.Empty(t, maps, "exofork must not copy memory")
}

func TestSetStatus(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	c := models.EnvID(sys(t, k, a, SYS_EXOFORK))
	for _, s := range []models.Status{models.ENV_FREE, models.ENV_DYING, 17} {
		assert.Equal(t, int32(models.E_INVAL), sys(t, k, a, SYS_ENV_SET_STATUS, uint32(c), uint32(s)))
	}
	assert.False(t, k.Runnable(c))
	assert.Equal(t, int32(0), sys(t, k, a, SYS_ENV_SET_STATUS, uint32(c), uint32(models.ENV_RUNNABLE)))
	assert.True(t, k.Runnable(c))
	assert.Equal(t, int32(models.E_BAD_ENV), sys(t, k, c, SYS_ENV_SET_STATUS, uint32(a), uint32(models.ENV_RUNNABLE)))
}

func TestSetTrapframe(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	c := models.EnvID(sys(t, k, a, SYS_EXOFORK))
	tf := models.Trapframe{Eip: 0x801234, Esp: models.USTACKTOP - 16, Eflags: FL_IF}
	tf.Regs.Eax = 7
	buf, err := tf.Pack()
	require.NoError(t, err)
	addr := uint32(models.USTACKTOP - models.PGSIZE)
	require.NoError(t, k.UserWrite(a, addr, buf))

	assert.Equal(t, int32(0), sys(t, k, a, SYS_ENV_SET_TRAPFRAME, uint32(c), addr))
	env, _ := k.Env(c)
	assert.Equal(t, tf, env.Tf)

	// reading the frame past the end of the stack page kills the caller
	_, err = k.Syscall(a, uint32(SYS_ENV_SET_TRAPFRAME), uint32(c), models.USTACKTOP-8)
	fault, ok := IsFault(err)
	require.True(t, ok, "expected fault, got %v", err)
	assert.Equal(t, a, fault.Env)
	assert.Equal(t, mem.MEM_READ_UNMAPPED, fault.Err.Enum)
	assert.False(t, k.Alive(a))
}

func TestCputs(t *testing.T) {
	out := &bytes.Buffer{}
	k := newKernel(t, 64, WithConsole(&BufConsole{W: out}))
	a := spawn(t, k)
	addr := uint32(models.USTACKTOP - 64)
	require.NoError(t, k.UserWrite(a, addr, []byte("hello, world\n")))
	assert.Equal(t, int32(0), sys(t, k, a, SYS_CPUTS, addr, 13))
	assert.Equal(t, "hello, world\n", out.String())

	_, err := k.Syscall(a, uint32(SYS_CPUTS), models.ULIM, 4)
	_, ok := IsFault(err)
	assert.True(t, ok)
	assert.False(t, k.Alive(a))
	assert.Equal(t, 1.0, testutil.ToFloat64(k.Metrics().Faults))
}

type brokenConsole struct{ BufConsole }

func (*brokenConsole) Write(p []byte) (int, error) {
	return 0, errors.New("console unplugged")
}

func TestCputsConsoleError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	k := newKernel(t, 64, WithConsole(&brokenConsole{}), WithLogger(zap.New(core)))
	a := spawn(t, k)
	addr := uint32(models.USTACKTOP - 64)
	require.NoError(t, k.UserWrite(a, addr, []byte("lost")))
	assert.Equal(t, int32(0), sys(t, k, a, SYS_CPUTS, addr, 4))
	assert.True(t, k.Alive(a))
	entries := logs.FilterMessage("console write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "console unplugged", entries[0].ContextMap()["error"])
}

func TestCgetcAndTime(t *testing.T) {
	console := &BufConsole{}
	now := time.Unix(1000, 0)
	k := newKernel(t, 64, WithConsole(console), WithClock(func() time.Time { return now }))
	a := spawn(t, k)
	assert.Equal(t, int32(0), sys(t, k, a, SYS_CGETC))
	console.Feed([]byte("x"))
	assert.Equal(t, int32('x'), sys(t, k, a, SYS_CGETC))
	assert.Equal(t, int32(0), sys(t, k, a, SYS_CGETC))

	now = now.Add(1500 * time.Millisecond)
	assert.Equal(t, int32(1500), sys(t, k, a, SYS_TIME_MSEC))
}

func TestUnknownSyscall(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	before, _ := k.Env(a)
	assert.Equal(t, int32(models.E_INVAL), sys(t, k, a, NSYSCALLS))
	assert.Equal(t, int32(models.E_INVAL), sys(t, k, a, 0xffffffff))
	after, _ := k.Env(a)
	assert.Equal(t, before.Status, after.Status)
}

func TestEnvDestroy(t *testing.T) {
	k := newKernel(t, 64)
	free := k.Pool().Free()
	a := spawn(t, k)
	c := models.EnvID(sys(t, k, a, SYS_EXOFORK))
	require.Equal(t, int32(0), sys(t, k, a, SYS_PAGE_ALLOC, uint32(c), models.UTEXT, uint32(pu)))
	assert.Equal(t, int32(models.E_BAD_ENV), sys(t, k, c, SYS_ENV_DESTROY, uint32(a)))
	assert.Equal(t, int32(0), sys(t, k, a, SYS_ENV_DESTROY, uint32(c)))
	assert.False(t, k.Alive(c))
	assert.Equal(t, int32(0), sys(t, k, a, SYS_ENV_DESTROY, 0))
	assert.False(t, k.Alive(a))
	assert.Equal(t, free, k.Pool().Free(), "destroy leaked frames")
	assert.Empty(t, k.Envs())
}

func TestDecodeEncode(t *testing.T) {
	k := newKernel(t, 8)
	call, err := k.Decode(uint32(SYS_PAGE_MAP), [5]uint32{0, 0x1000, 0x1001, 0x2000, uint32(puw)})
	require.NoError(t, err)
	want := &PageMap{SrcEnv: 0, SrcVa: 0x1000, DstEnv: 0x1001, DstVa: 0x2000, Perm: puw}
	assert.Equal(t, want, call)
	num, args := Encode(call)
	assert.Equal(t, uint32(SYS_PAGE_MAP), num)
	assert.Equal(t, [5]uint32{0, 0x1000, 0x1001, 0x2000, uint32(puw)}, args)

	_, err = k.Decode(uint32(NSYSCALLS), [5]uint32{})
	assert.Equal(t, models.E_INVAL, err)
}

func TestSyscallNames(t *testing.T) {
	names := map[Num]string{
		SYS_CPUTS:                  "cputs",
		SYS_ENV_SET_PGFAULT_UPCALL: "env_set_pgfault_upcall",
		SYS_IPC_TRY_SEND:           "ipc_try_send",
		SYS_TIME_MSEC:              "time_msec",
	}
	for num, name := range names {
		if num.String() != name {
			t.Errorf("%d: %s != %s", num, num, name)
		}
		sc, ok := Lookup("sys_" + name)
		if !ok || sc.Num != num {
			t.Errorf("lookup %s failed", name)
		}
	}
	sc, _ := Lookup("page_map")
	assert.Equal(t, []string{"src_env", "src_va", "dst_env", "dst_va", "perm"}, sc.Args)
}

func TestMetrics(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	sys(t, k, a, SYS_GETENVID)
	sys(t, k, a, SYS_PAGE_ALLOC, 0, 1, uint32(pu))
	assert.Equal(t, 1.0, testutil.ToFloat64(k.Metrics().Syscalls.WithLabelValues("getenvid", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(k.Metrics().Syscalls.WithLabelValues("page_alloc", "E_INVAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(k.Metrics().EnvsLive))
	assert.Equal(t, float64(k.Pool().Free()), testutil.ToFloat64(k.Metrics().FreeFrames))
}

func TestStrace(t *testing.T) {
	out := &bytes.Buffer{}
	config := models.DefaultConfig()
	config.NPages = 16
	config.TraceSys = true
	config.Output = out
	k, err := New(config, WithConsole(&BufConsole{}))
	require.NoError(t, err)
	a := spawn(t, k)
	sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, uint32(puw))
	sys(t, k, a, SYS_PAGE_ALLOC, 0, models.UTEXT, 1)
	require.NoError(t, k.UserWrite(a, models.UTEXT, []byte("hi")))
	sys(t, k, a, SYS_CPUTS, models.UTEXT, 2)
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, "[00001000] page_alloc(0, 0x800000, PTE_P|PTE_W|PTE_U) = 0x0", string(lines[0]))
	assert.Equal(t, "[00001000] page_alloc(0, 0x800000, PTE_P) = -3 E_INVAL", string(lines[1]))
	assert.Equal(t, `[00001000] cputs("hi", 2) = 0x0`, string(lines[2]))
}

func TestStraceRet(t *testing.T) {
	s := &Strace{}
	tests := []struct {
		ret  int32
		err  error
		want string
	}{
		{0, nil, "= 0x0"},
		{0x1001, nil, "= 0x1001"},
		{int32(models.E_NO_MEM), nil, "= -4 E_NO_MEM"},
		{-6, nil, "= -0x6"},
		{0, ErrBlocked, "= ? <blocked>"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, s.Ret(test.ret, test.err))
	}
}

func TestSyscallArgsFromTrapframe(t *testing.T) {
	k := newKernel(t, 64)
	a := spawn(t, k)
	sys(t, k, a, SYS_PAGE_UNMAP, 0, models.UTEXT)
	env, _ := k.Env(a)
	assert.Equal(t, [5]uint32{0, models.UTEXT, 0, 0, 0}, env.Tf.SyscallArgs())
	assert.Equal(t, uint32(0), env.Tf.Regs.Eax)
}
