package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder/domain/matching"
	"ladder/domain/orderbook"
)

func TestWriteLoad(t *testing.T) {
	dir := t.TempDir()
	e := matching.New()
	for _, req := range []matching.SubmitRequest{
		{Client: 1, Side: orderbook.Bid, Price: orderbook.Limit(100), Qty: 3},
		{Client: 2, Side: orderbook.Ask, Price: orderbook.Limit(110), Qty: 5},
		{Client: 3, Side: orderbook.Ask, Price: orderbook.Limit(110), Qty: 1},
	} {
		_, err := e.Submit(req)
		require.NoError(t, err)
	}

	w := &Writer{Dir: dir}
	in := &Snapshot{Seq: 3, Symbol: "LDR-USD", Created: time.Now().UTC(), State: e.State()}
	require.NoError(t, w.Write(in))

	out, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, uint64(3), out.Seq)
	assert.Equal(t, "LDR-USD", out.Symbol)
	assert.Equal(t, in.State, out.State)

	restored := matching.New()
	require.NoError(t, restored.Restore(out.State))
	assert.Equal(t, e.Depth(0), restored.Depth(0))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriteReplaces(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir}
	require.NoError(t, w.Write(&Snapshot{Seq: 1}))
	require.NoError(t, w.Write(&Snapshot{Seq: 9}))

	out, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), out.Seq)
}

func TestLoadMissing(t *testing.T) {
	out, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestLoadGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("not gob"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}
