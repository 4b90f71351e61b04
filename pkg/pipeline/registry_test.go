package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRecorder remembers the env it was initialized with.
type initRecorder struct {
	fakePipeline
	env     Env
	initErr error
}

func (p *initRecorder) Init(_ context.Context, env Env) error {
	p.env = env
	return p.initErr
}

func TestRegisterAndLookup(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	p := &fakePipeline{name: "income"}
	Register(p)

	assert.Equal(t, p, Lookup("income"))
	assert.Nil(t, Lookup("unknown"))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	Register(&fakePipeline{name: "income"})
	assert.Panics(t, func() {
		Register(&fakePipeline{name: "income"})
	})
}

func TestRegisterEmptyNamePanics(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	assert.Panics(t, func() {
		Register(&fakePipeline{name: ""})
	})
}

func TestNamesAndAllSorted(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	Register(&fakePipeline{name: "nic_tipologia"})
	Register(&fakePipeline{name: "income"})
	Register(&fakePipeline{name: "consumption"})

	assert.Equal(t, []string{"consumption", "income", "nic_tipologia"}, Names())

	all := All()
	require.Len(t, all, 3)
	assert.Equal(t, "consumption", all[0].Name())
	assert.Equal(t, "nic_tipologia", all[2].Name())
}

func TestResetClearsRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	Register(&fakePipeline{name: "income"})
	Reset()
	assert.Empty(t, Names())
}

func TestInitAllPassesEnv(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	p := &initRecorder{fakePipeline: fakePipeline{name: "income"}}
	Register(p)

	env := Env{Folders: map[string]string{"quarterly": "folder-q"}}
	require.NoError(t, InitAll(context.Background(), env))
	assert.Equal(t, "folder-q", p.env.Folder("quarterly"))
	assert.Equal(t, "", p.env.Folder("monthly"))
}

func TestInitAllStopsOnError(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	Register(&initRecorder{
		fakePipeline: fakePipeline{name: "income"},
		initErr:      errors.New("no client"),
	})

	err := InitAll(context.Background(), Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "income")
}
