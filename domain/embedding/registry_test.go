package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterGetCreate(t *testing.T) {
	stub := newStub(4)
	reg := registryWith(t, "stub-embedder", stub)

	handle, ok := reg.Get("stub-embedder")
	require.True(t, ok)
	assert.Equal(t, "stub-embedder", handle.Name())

	fn, err := handle.Create(nil)
	require.NoError(t, err)

	got, err := fn.ComputeQueryEmbeddings(context.Background(), "abc")
	require.NoError(t, err)
	want, err := stub.ComputeQueryEmbeddings(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	fn, err = reg.Create("stub-embedder", nil)
	require.NoError(t, err)
	assert.Same(t, stub, fn)
}

func TestRegistry_GetDoesNotConstruct(t *testing.T) {
	var created atomic.Int64
	reg := NewRegistry()
	require.NoError(t, reg.Register("lazy", FactoryFunc(func(Params) (Function, error) {
		created.Add(1)
		return newStub(2), nil
	})))

	_, ok := reg.Get("lazy")
	require.True(t, ok)
	assert.Equal(t, int64(0), created.Load())

	_, err := reg.Create("lazy", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Load())
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := registryWith(t, "dup", newStub(4))

	err := reg.RegisterFunction("dup", newStub(8))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateName)

	var regErr *RegistryError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, "dup", regErr.Name)

	fn, err := reg.Create("dup", nil)
	require.NoError(t, err)
	vt, err := fn.DestType(newStub(1).SourceType())
	require.NoError(t, err)
	assert.Equal(t, 4, vt.Dimension, "original registration must survive")
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Run("per call", func(t *testing.T) {
		reg := registryWith(t, "f", newStub(4))
		require.NoError(t, reg.RegisterFunction("f", newStub(8), WithOverwrite()))
		assertDimension(t, reg, "f", 8)
	})

	t.Run("registry wide", func(t *testing.T) {
		reg := NewRegistry(WithAllowOverwrite())
		require.NoError(t, reg.RegisterFunction("f", newStub(4)))
		require.NoError(t, reg.RegisterFunction("f", newStub(16)))
		assertDimension(t, reg, "f", 16)
	})
}

func TestRegistry_NamesAreExact(t *testing.T) {
	reg := registryWith(t, "Stub", newStub(4))

	_, ok := reg.Get("stub")
	assert.False(t, ok, "names are case-sensitive")
	_, ok = reg.Get(" Stub")
	assert.False(t, ok, "names are not trimmed")
}

func TestRegistry_CreateNotFound(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Create("missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_FactoryReceivesParams(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("sized", FactoryFunc(func(p Params) (Function, error) {
		return newStub(p.GetInt("dim", 3)), nil
	})))

	assertDimension(t, reg, "sized", 3)

	fn, err := reg.Create("sized", Params{"dim": 12})
	require.NoError(t, err)
	vt, err := fn.DestType(fn.SourceType())
	require.NoError(t, err)
	assert.Equal(t, 12, vt.Dimension)
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("no api key")
	require.NoError(t, reg.Register("broken", FactoryFunc(func(Params) (Function, error) {
		return nil, boom
	})))

	_, err := reg.Create("broken", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RejectsInvalidRegistrations(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.RegisterFunction("", newStub(1)))
	assert.Error(t, reg.Register("x", nil))
	assert.Error(t, reg.RegisterFunction("x", nil))
	assert.Empty(t, reg.Names())
}

func TestRegistry_UnregisterAndNames(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"b", "c", "a"} {
		require.NoError(t, reg.RegisterFunction(name, newStub(1)))
	}
	assert.Equal(t, []string{"a", "b", "c"}, reg.Names())

	assert.True(t, reg.Unregister("b"))
	assert.False(t, reg.Unregister("b"))
	assert.Equal(t, []string{"a", "c"}, reg.Names())
}

func TestRegistry_ConcurrentRegisterSameName(t *testing.T) {
	reg := NewRegistry()

	const writers = 32
	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(dim int) {
			defer wg.Done()
			err := reg.RegisterFunction("shared", newStub(dim))
			if err == nil {
				succeeded.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrDuplicateName)
		}(i + 1)
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load(), "exactly one registration wins")
}

func TestRegistry_ConcurrentReadWrite(t *testing.T) {
	reg := registryWith(t, "base", newStub(4))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, reg.RegisterFunction(fmt.Sprintf("fn-%d", i), newStub(2)))
		}(i)
		go func() {
			defer wg.Done()
			_, err := reg.Create("base", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, reg.Names(), 17)
}

func assertDimension(t *testing.T, reg *Registry, name string, want int) {
	t.Helper()
	fn, err := reg.Create(name, nil)
	require.NoError(t, err)
	vt, err := fn.DestType(fn.SourceType())
	require.NoError(t, err)
	assert.Equal(t, want, vt.Dimension)
}
