package services

import (
	"ShopHub/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerDetailsForGuest(t *testing.T) {
	db := newTestDB(t)
	svc := NewCustomerService(db)
	convSvc := NewConversationService(db, &recordingBus{}, nil)

	conv, err := convSvc.Create(GuestIdentity("g1"))
	require.NoError(t, err)

	details, err := svc.DetailsFor(conv)
	require.NoError(t, err)
	assert.Nil(t, details.UserID)
	assert.Equal(t, "Guest User", details.Username)
	assert.Empty(t, details.Orders)
	assert.Zero(t, details.OrderCount)
	assert.Zero(t, details.CartItemCount)
	assert.Zero(t, details.WishlistItemCount)
}

func TestCustomerDetailsForCustomer(t *testing.T) {
	db := newTestDB(t)
	svc := NewCustomerService(db)
	convSvc := NewConversationService(db, &recordingBus{}, nil)
	alice := createUser(t, db, "alice", "client")

	require.NoError(t, db.Create(&models.Order{
		UserID: alice.ID,
		Status: "delivered",
		Items: []models.OrderItem{
			{ProductName: "Keyboard", Quantity: 1, Price: 49.99},
		},
	}).Error)
	require.NoError(t, db.Create(&models.Order{
		UserID: alice.ID,
		Status: "processing",
		Items: []models.OrderItem{
			{ProductName: "Mouse", Quantity: 2, Price: 19.99},
		},
	}).Error)
	require.NoError(t, db.Create(&models.Cart{
		UserID: alice.ID,
		Items: []models.CartItem{
			{ProductName: "Monitor", Quantity: 2, Price: 199.0},
			{ProductName: "Cable", Quantity: 3, Price: 5.0},
		},
	}).Error)
	require.NoError(t, db.Create(&models.Wishlist{
		UserID: alice.ID,
		Items: []models.WishlistItem{
			{ProductName: "Desk", Price: 300.0},
		},
	}).Error)

	conv, err := convSvc.Create(Identity{User: alice})
	require.NoError(t, err)

	details, err := svc.DetailsFor(conv)
	require.NoError(t, err)
	require.NotNil(t, details.UserID)
	assert.Equal(t, alice.ID, *details.UserID)
	assert.Equal(t, "alice", details.Username)
	assert.Equal(t, int64(2), details.OrderCount)
	require.Len(t, details.Orders, 2)
	assert.NotEmpty(t, details.Orders[0].Items)
	// 购物车计数是数量总和
	assert.Equal(t, 5, details.CartItemCount)
	assert.Len(t, details.CartItems, 2)
	assert.Equal(t, 1, details.WishlistItemCount)
}

func TestCustomerDetailsNoShopData(t *testing.T) {
	db := newTestDB(t)
	svc := NewCustomerService(db)
	convSvc := NewConversationService(db, &recordingBus{}, nil)
	bob := createUser(t, db, "bob", "client")

	conv, err := convSvc.Create(Identity{User: bob})
	require.NoError(t, err)

	details, err := svc.DetailsFor(conv)
	require.NoError(t, err)
	assert.Equal(t, "bob", details.Username)
	assert.Zero(t, details.OrderCount)
	assert.Empty(t, details.CartItems)
	assert.Empty(t, details.WishlistItems)
}
