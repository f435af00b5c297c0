package journal

import (
	"context"
	"encoding/json"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftmarketplace-onchain/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestFingerprint(t *testing.T) {
	a := &model.CallRequest{Operation: model.OpBlacklistUser, Args: []interface{}{"0x000000000000000000000000000000000000dead"}}
	b := &model.CallRequest{Operation: model.OpBlacklistUser, Args: []interface{}{"0x000000000000000000000000000000000000dEaD"}}
	c := &model.CallRequest{Operation: model.OpWhitelistUser, Args: []interface{}{"0x000000000000000000000000000000000000dEaD"}}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))

	n1 := &model.CallRequest{Operation: model.OpMarkItemAsSold, Args: []interface{}{1}}
	n2 := &model.CallRequest{Operation: model.OpMarkItemAsSold, Args: []interface{}{"1"}}
	n3 := &model.CallRequest{Operation: model.OpMarkItemAsSold, Args: []interface{}{big.NewInt(1)}}
	assert.Equal(t, Fingerprint(n1), Fingerprint(n2))
	assert.Equal(t, Fingerprint(n1), Fingerprint(n3))

	// 先頭の0は10進のまま。8進として別の値にしない
	d1 := &model.CallRequest{Operation: model.OpMarkItemAsSold, Args: []interface{}{"010"}}
	d2 := &model.CallRequest{Operation: model.OpMarkItemAsSold, Args: []interface{}{json.Number("10")}}
	d3 := &model.CallRequest{Operation: model.OpMarkItemAsSold, Args: []interface{}{"8"}}
	assert.Equal(t, Fingerprint(d1), Fingerprint(d2))
	assert.NotEqual(t, Fingerprint(d1), Fingerprint(d3))

	v1 := &model.CallRequest{Operation: model.OpBuyWithEth, Args: []interface{}{1}, Value: big.NewInt(1)}
	v2 := &model.CallRequest{Operation: model.OpBuyWithEth, Args: []interface{}{1}, Value: big.NewInt(2)}
	assert.NotEqual(t, Fingerprint(v1), Fingerprint(v2))
}

func TestBeginUpdateFind(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	req := &model.CallRequest{Operation: model.OpMarkItemAsSold, Args: []interface{}{1}}

	found, err := j.FindConfirmed(ctx, Fingerprint(req))
	require.NoError(t, err)
	assert.Nil(t, found)

	entry, err := j.Begin(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, entry.Status)

	found, err = j.FindConfirmed(ctx, Fingerprint(req))
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, j.Update(ctx, entry.ID, model.StatusConfirmed, "0xabc", ""))
	found, err = j.FindConfirmed(ctx, Fingerprint(req))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entry.ID, found.ID)
	assert.Equal(t, "0xabc", found.TxHash)
	assert.Equal(t, model.StatusConfirmed, found.Status)

	assert.Error(t, j.Update(ctx, "missing", model.StatusRejected, "", "x"))
}

func TestUpdateKeepsTxHash(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	entry, err := j.Begin(ctx, &model.CallRequest{Operation: model.OpChangeFee, Args: []interface{}{10}})
	require.NoError(t, err)
	require.NoError(t, j.Update(ctx, entry.ID, model.StatusPending, "0xdef", ""))
	require.NoError(t, j.Update(ctx, entry.ID, model.StatusRejected, "", "Ownable: caller is not the owner"))

	entries, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xdef", entries[0].TxHash)
	assert.Equal(t, model.StatusRejected, entries[0].Status)
	assert.Equal(t, "Ownable: caller is not the owner", entries[0].Reason)
}

func TestListNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	j.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, op := range []string{model.OpBlacklistUser, model.OpWhitelistUser, model.OpChangeFee} {
		_, err := j.Begin(ctx, &model.CallRequest{Operation: op})
		require.NoError(t, err)
	}

	entries, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.OpChangeFee, entries[0].Operation)
	assert.Equal(t, model.OpWhitelistUser, entries[1].Operation)
	assert.Equal(t, base.Add(3*time.Second), entries[0].CreatedAt)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Begin(context.Background(), &model.CallRequest{Operation: model.OpChangeFee})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
