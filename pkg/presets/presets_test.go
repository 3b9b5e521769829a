package presets

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chargeguru/chargeguru/pkg/b6"
	"github.com/chargeguru/chargeguru/pkg/form"
)

func nimh() form.State {
	s := form.DefaultState()
	s.BatteryType = b6.NiMH
	s.Mode = b6.NiRepeak
	s.RepeakCount = 2
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	list, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, st.Save(Preset{Name: "pack-4s", Form: form.DefaultState()}))
	require.NoError(t, st.Save(Preset{Name: "aa-eneloop", Description: "AA cells", Form: nimh()}))

	list, err = st.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "aa-eneloop", list[0].Name)
	assert.Equal(t, "pack-4s", list[1].Name)

	p, err := st.Get("aa-eneloop")
	require.NoError(t, err)
	assert.Equal(t, nimh(), p.Form)
	assert.Equal(t, "AA cells", p.Description)
	assert.False(t, p.UpdatedAt.IsZero())

	require.NoError(t, st.Delete("aa-eneloop"))
	_, err = st.Get("aa-eneloop")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete("aa-eneloop"), ErrNotFound)
}

func TestStoreRejectsBadNames(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../etc", "a/b", ".hidden"} {
		assert.Error(t, st.Save(Preset{Name: name, Form: form.DefaultState()}), name)
		_, err := st.Get(name)
		assert.Error(t, err, name)
	}
}

func TestExportImport(t *testing.T) {
	in := []Preset{
		{Name: "night", Form: form.DefaultState()},
		{Name: "aa", Form: nimh()},
	}
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, in))
	assert.Contains(t, buf.String(), "mode: Re-peak")

	out, err := Import(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].Form, out[0].Form)
	assert.Equal(t, in[1].Form, out[1].Form)

	empty, err := Import(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = Import(strings.NewReader("- name: bad\n  form:\n    batteryType: Pb\n    mode: Storage\n"))
	assert.Error(t, err)
}
