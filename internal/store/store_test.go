package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"scenepilot/internal/retrieval"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pilot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	snapshot := []byte(`{"command_count": 3}`)
	require.NoError(t, s.SaveSession("default", snapshot))

	loaded, err := s.LoadSession("default")
	require.NoError(t, err)
	assert.JSONEq(t, string(snapshot), string(loaded))

	_, err = s.LoadSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSaveSessionUpserts(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveSession("default", []byte(`{"v":1}`)))
	require.NoError(t, s.SaveSession("default", []byte(`{"v":2}`)))

	loaded, err := s.LoadSession("default")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(loaded))

	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "default", sessions[0].ID)
}

func TestDeleteSession(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveSession("default", []byte(`{}`)))
	require.NoError(t, s.DeleteSession("default"))
	_, err := s.LoadSession("default")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Unknown IDs delete cleanly.
	require.NoError(t, s.DeleteSession("missing"))
}

func TestEquipmentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	records := []*retrieval.Equipment{
		{
			Element:         "el-101",
			Name:            "Circulation Pump 7",
			System:          "chilled water system",
			Category:        "Pumps",
			Concept:         "centrifugal pump",
			Function:        "circulates chilled water",
			ApplicableCodes: []string{"ASME B73.1"},
		},
		{
			Element:  "el-102",
			Name:     "Isolation Valve 2",
			System:   "chilled water system",
			Category: "Valves",
		},
	}
	require.NoError(t, s.SaveEquipment(records))

	n, err := s.EquipmentCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err := s.LoadEquipment()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "Circulation Pump 7", loaded[0].Name)
	assert.Equal(t, []string{"ASME B73.1"}, loaded[0].ApplicableCodes)

	// Upsert keeps a single row per element.
	records[0].Function = "circulates chilled water through the primary loop"
	require.NoError(t, s.SaveEquipment(records[:1]))
	n, err = s.EquipmentCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err = s.LoadEquipment()
	require.NoError(t, err)
	assert.Equal(t, "circulates chilled water through the primary loop", loaded[0].Function)
}

func TestReopenPersists(t *testing.T) {
	defer goleak.VerifyNone(t)

	dbPath := filepath.Join(t.TempDir(), "pilot.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession("default", []byte(`{"v":1}`)))
	require.NoError(t, s.SaveEquipment([]*retrieval.Equipment{{Element: "el-1", Name: "Fan 1"}}))
	require.NoError(t, s.Close())

	s, err = Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.LoadSession("default")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(loaded))

	n, err := s.EquipmentCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
