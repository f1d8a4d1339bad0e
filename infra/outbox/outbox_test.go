package outbox

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/require"
)

func openTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, o.Close()) })
	return o
}

func TestPutGetRoundTrip(t *testing.T) {
	o := openTestOutbox(t)

	require.NoError(t, o.Put(42, []byte(`{"result":100.5}`)))

	rec, err := o.Get(42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), rec.ID)
	require.Equal(t, StateNew, rec.State)
	require.Zero(t, rec.Attempts)
	require.Equal(t, []byte(`{"result":100.5}`), rec.Payload)
}

func TestAdvanceTracksAttempts(t *testing.T) {
	o := openTestOutbox(t)
	require.NoError(t, o.Put(1, []byte("x")))

	require.NoError(t, o.Advance(1, StateSent))
	rec, err := o.Get(1)
	require.NoError(t, err)
	require.Equal(t, StateSent, rec.State)
	require.Equal(t, uint32(1), rec.Attempts)
	require.NotZero(t, rec.LastAttempt)

	require.NoError(t, o.Advance(1, StateAcked))
	rec, err = o.Get(1)
	require.NoError(t, err)
	require.Equal(t, StateAcked, rec.State)
	require.Equal(t, uint32(2), rec.Attempts)
}

func TestScanByStateFiltersAndOrders(t *testing.T) {
	o := openTestOutbox(t)
	require.NoError(t, o.Put(3, []byte("c")))
	require.NoError(t, o.Put(1, []byte("a")))
	require.NoError(t, o.Put(2, []byte("b")))
	require.NoError(t, o.Advance(2, StateAcked))

	var ids []uint64
	require.NoError(t, o.ScanByState(StateNew, func(rec Record) error {
		ids = append(ids, rec.ID)
		return nil
	}))
	require.Equal(t, []uint64{1, 3}, ids)

	ids = nil
	require.NoError(t, o.ScanByState(StateAcked, func(rec Record) error {
		ids = append(ids, rec.ID)
		return nil
	}))
	require.Equal(t, []uint64{2}, ids)
}

func TestDeleteRemovesRecord(t *testing.T) {
	o := openTestOutbox(t)
	require.NoError(t, o.Put(9, []byte("gone")))
	require.NoError(t, o.Delete(9))

	_, err := o.Get(9)
	require.ErrorIs(t, err, pebble.ErrNotFound)
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	o, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, o.Put(5, []byte("payload")))
	require.NoError(t, o.Advance(5, StateSent))
	require.NoError(t, o.Close())

	o, err = Open(dir)
	require.NoError(t, err)
	defer o.Close()

	rec, err := o.Get(5)
	require.NoError(t, err)
	require.Equal(t, StateSent, rec.State)
	require.Equal(t, []byte("payload"), rec.Payload)
}
