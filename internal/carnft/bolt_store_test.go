package carnft

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	test "github.com/cryptowheels/marketplace/internal/testutils"
)

func newBoltStore(t *testing.T) Store {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "carnft.db"))
	require.NoError(t, err)
	return store
}

func TestBoltStore_tokens(t *testing.T) {
	store := newBoltStore(t)

	rec, err := store.Do().GetToken(1)
	require.NoError(t, err)
	require.Nil(t, rec)

	owner := test.RandomAddress()
	require.NoError(t, store.Do().SetToken(1, &TokenRecord{Owner: owner, URI: testURI}))

	rec, err = store.Do().GetToken(1)
	require.NoError(t, err)
	require.Equal(t, &TokenRecord{Owner: owner, URI: testURI}, rec)

	require.NoError(t, store.Do().RemoveToken(1))
	rec, err = store.Do().GetToken(1)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestBoltStore_totalSupply(t *testing.T) {
	store := newBoltStore(t)

	supply, err := store.Do().GetTotalSupply()
	require.NoError(t, err)
	require.EqualValues(t, 0, supply)

	require.NoError(t, store.Do().SetTotalSupply(7))
	supply, err = store.Do().GetTotalSupply()
	require.NoError(t, err)
	require.EqualValues(t, 7, supply)
}

func TestBoltStore_transactionRollsBackOnError(t *testing.T) {
	store := newBoltStore(t)
	expErr := fmt.Errorf("some error")

	err := store.WithTransaction(func(txs StoreTx) error {
		require.NoError(t, txs.SetToken(1, &TokenRecord{Owner: test.RandomAddress(), URI: testURI}))
		require.NoError(t, txs.SetTotalSupply(1))
		return expErr
	})
	require.ErrorIs(t, err, expErr)

	rec, err := store.Do().GetToken(1)
	require.NoError(t, err)
	require.Nil(t, rec)
	supply, err := store.Do().GetTotalSupply()
	require.NoError(t, err)
	require.EqualValues(t, 0, supply)
}
