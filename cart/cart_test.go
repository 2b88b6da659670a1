package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-service/models"
)

func shirt(qty int) models.CartItem {
	return models.CartItem{ProductID: "p1", Name: "Shirt", Size: "M", Color: "blue", UnitPrice: 499, Quantity: qty}
}

func TestAddMergesVariants(t *testing.T) {
	store, err := New(&MemoryStore{}, nil)
	require.NoError(t, err)

	require.NoError(t, store.Add(shirt(1)))
	require.NoError(t, store.Add(shirt(2)))

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)

	// A different size is a separate line.
	other := shirt(1)
	other.Size = "L"
	require.NoError(t, store.Add(other))
	assert.Len(t, store.Items(), 2)
}

func TestAddRejectsInvalidItems(t *testing.T) {
	store, err := New(&MemoryStore{}, nil)
	require.NoError(t, err)

	bad := shirt(0)
	assert.ErrorIs(t, store.Add(bad), ErrInvalidQuantity)

	bad = shirt(1)
	bad.UnitPrice = -1
	assert.ErrorIs(t, store.Add(bad), ErrInvalidPrice)

	assert.Empty(t, store.Items())
}

func TestSetQuantityAndRemove(t *testing.T) {
	store, err := New(&MemoryStore{}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Add(shirt(1)))

	require.NoError(t, store.SetQuantity("p1", "M", "blue", 5))
	assert.Equal(t, 5, store.Items()[0].Quantity)

	assert.ErrorIs(t, store.SetQuantity("p1", "M", "blue", 0), ErrInvalidQuantity)
	assert.ErrorIs(t, store.SetQuantity("p9", "M", "blue", 1), ErrItemNotFound)

	require.NoError(t, store.Remove("p1", "M", "blue"))
	assert.Empty(t, store.Items())
	assert.ErrorIs(t, store.Remove("p1", "M", "blue"), ErrItemNotFound)
}

func TestSubtotal(t *testing.T) {
	store, err := New(&MemoryStore{}, nil)
	require.NoError(t, err)

	require.NoError(t, store.Add(shirt(2)))
	jeans := models.CartItem{ProductID: "p2", Name: "Jeans", UnitPrice: 1299, Quantity: 1}
	require.NoError(t, store.Add(jeans))

	assert.Equal(t, 499.0*2+1299, store.Subtotal())
}

func TestStatePersistsAcrossStores(t *testing.T) {
	persistence := &MemoryStore{}

	store, err := New(persistence, nil)
	require.NoError(t, err)
	require.NoError(t, store.Add(shirt(2)))

	// A fresh store over the same adapter sees the saved cart.
	reopened, err := New(persistence, nil)
	require.NoError(t, err)
	items := reopened.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestCrossTabSync(t *testing.T) {
	bus := NewBroadcaster()

	tabA, err := New(&MemoryStore{}, bus)
	require.NoError(t, err)
	defer tabA.Close()

	tabB, err := New(&MemoryStore{}, bus)
	require.NoError(t, err)
	defer tabB.Close()

	require.NoError(t, tabA.Add(shirt(1)))

	itemsB := tabB.Items()
	require.Len(t, itemsB, 1)
	assert.Equal(t, "p1", itemsB[0].ProductID)

	require.NoError(t, tabB.Clear())
	assert.Empty(t, tabA.Items())
}

func TestClosedTabStopsSyncing(t *testing.T) {
	bus := NewBroadcaster()

	tabA, err := New(&MemoryStore{}, bus)
	require.NoError(t, err)
	tabB, err := New(&MemoryStore{}, bus)
	require.NoError(t, err)

	tabB.Close()
	require.NoError(t, tabA.Add(shirt(1)))
	assert.Empty(t, tabB.Items())
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := t.TempDir() + "/cart.json"
	fs := &FileStore{Path: path}

	state, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, state.Items, "missing file is an empty cart")

	require.NoError(t, fs.Save(State{Items: []models.CartItem{shirt(3)}}))

	state, err = fs.Load()
	require.NoError(t, err)
	require.Len(t, state.Items, 1)
	assert.Equal(t, 3, state.Items[0].Quantity)
}
