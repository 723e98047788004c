package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []Result[string] {
	return []Result[string]{
		{Index: 2, Value: "c"},
		{Index: 0, Value: "a"},
		{Index: 1, Err: errors.New("failed")},
		{Index: 3, Value: "d"},
	}
}

func TestMaterializeDropFailed(t *testing.T) {
	out := Materialize(sampleResults(), DropFailed)
	assert.Equal(t, []string{"a", "c", "d"}, Values(out))
	assert.Len(t, out, 3)
}

func TestMaterializeKeepNull(t *testing.T) {
	out := Materialize(sampleResults(), KeepNull)
	require.Len(t, out, 4)
	assert.Equal(t, "a", *out[0])
	assert.Nil(t, out[1])
	assert.Equal(t, "c", *out[2])
	assert.Equal(t, "d", *out[3])
}

func TestMaterializeDoesNotReorderInput(t *testing.T) {
	in := sampleResults()
	Materialize(in, KeepNull)
	assert.Equal(t, 2, in[0].Index)
}

func TestMapAppliesPolicy(t *testing.T) {
	fn := func(_ context.Context, _ *echoWorker, v int) (int, error) {
		if v%2 == 1 {
			return 0, errors.New("odd")
		}
		return v * 10, nil
	}
	kept := Map(context.Background(), []int{0, 1, 2, 3, 4}, Options{Concurrency: 2}, KeepNull, newEcho, fn)
	require.Len(t, kept, 5)
	assert.Nil(t, kept[1])
	assert.Nil(t, kept[3])
	assert.Equal(t, 40, *kept[4])

	dropped := Map(context.Background(), []int{0, 1, 2, 3, 4}, Options{Concurrency: 2}, DropFailed, newEcho, fn)
	assert.Equal(t, []int{0, 20, 40}, Values(dropped))
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "drop-failed", DropFailed.String())
	assert.Equal(t, "keep-null", KeepNull.String())
}
