package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleTransitions(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, StateConfiguring, m.State())

	require.NoError(t, m.Open())
	assert.Equal(t, StateOpened, m.State())

	require.NoError(t, m.StartCapture())
	assert.Equal(t, StateCapturing, m.State())

	require.NoError(t, m.StopCapture())
	assert.Equal(t, StateOpened, m.State())

	require.NoError(t, m.Close())
	assert.Equal(t, StateClosed, m.State())
}

func TestIllegalTransitionIsSetupError(t *testing.T) {
	m := NewMachine()

	err := m.StartCapture()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup error")

	require.NoError(t, m.Open())
	err = m.Open()
	require.Error(t, err, "re-opening an already-opened machine must fail")
}

func TestSetFilterOnce(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.SetFilter())

	err := m.SetFilter()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already set")
}

func TestReserveThreadMemoryPreOpenOnly(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.ReserveThreadMemory())

	err := m.ReserveThreadMemory()
	require.Error(t, err, "reserving twice must fail")

	m2 := NewMachine()
	require.NoError(t, m2.Open())
	err = m2.ReserveThreadMemory()
	require.Error(t, err, "reserving after open must fail")
}
