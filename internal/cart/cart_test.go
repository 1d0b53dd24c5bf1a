package cart

import (
	"testing"

	"upets/platform-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMergesSameProduct(t *testing.T) {
	s := NewStore()
	_, err := s.AddItem("u1", Item{ProductID: "tag-basic", Name: "Basic tag", QRType: models.QRTypeBasic, Quantity: 1, UnitPrice: 1500})
	require.NoError(t, err)
	cart, err := s.AddItem("u1", Item{ProductID: "tag-basic", Name: "Basic tag", QRType: models.QRTypeBasic, Quantity: 2, UnitPrice: 1500})
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 3, cart.ItemCount)
	assert.Equal(t, 4500.0, cart.Total)
	assert.Empty(t, s.Get("u2").Items)
}

func TestAddRejectsInvalidItems(t *testing.T) {
	s := NewStore()
	for _, item := range []Item{
		{ProductID: "", Quantity: 1},
		{ProductID: "x", Quantity: 0},
		{ProductID: "x", Quantity: 1, UnitPrice: -1},
		{ProductID: "x", Quantity: 1, QRType: "gold"},
	} {
		_, err := s.AddItem("u1", item)
		assert.ErrorIs(t, err, ErrInvalidItem)
	}
}

func TestUpdateRemoveClear(t *testing.T) {
	s := NewStore()
	_, err := s.AddItem("u1", Item{ProductID: "a", Quantity: 1, UnitPrice: 10})
	require.NoError(t, err)
	_, err = s.AddItem("u1", Item{ProductID: "b", Quantity: 1, UnitPrice: 20})
	require.NoError(t, err)

	cart, err := s.UpdateQuantity("u1", "a", 4)
	require.NoError(t, err)
	assert.Equal(t, 60.0, cart.Total)

	cart, err = s.UpdateQuantity("u1", "a", 0)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	_, err = s.RemoveItem("u1", "a")
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = s.UpdateQuantity("u1", "zzz", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	cart = s.Clear("u1")
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Total)
}

func TestSubscribeSeesChanges(t *testing.T) {
	s := NewStore()
	updates, cancel := s.Subscribe("u1")

	initial := <-updates
	assert.Empty(t, initial.Items)

	_, err := s.AddItem("u1", Item{ProductID: "a", Quantity: 1, UnitPrice: 10})
	require.NoError(t, err)
	_, err = s.AddItem("u1", Item{ProductID: "a", Quantity: 1, UnitPrice: 10})
	require.NoError(t, err)

	latest := <-updates
	assert.Equal(t, 2, latest.ItemCount)

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)

	_, err = s.AddItem("u1", Item{ProductID: "b", Quantity: 1})
	require.NoError(t, err)
}
