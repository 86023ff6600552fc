package services

import (
	"ShopHub/models"
	"errors"

	"gorm.io/gorm"
)

// CustomerDetails 坐席侧客户面板：最近订单、购物车、心愿单。
// 游客会话返回占位数据，计数全 0。
type CustomerDetails struct {
	UserID            *uint                 `json:"user_id"`
	Username          string                `json:"username"`
	Email             string                `json:"email,omitempty"`
	Orders            []models.Order        `json:"orders"`
	CartItems         []models.CartItem     `json:"cart_items"`
	WishlistItems     []models.WishlistItem `json:"wishlist_items"`
	OrderCount        int64                 `json:"order_count"`
	CartItemCount     int                   `json:"cart_item_count"` // 数量总和，不是条目数
	WishlistItemCount int                   `json:"wishlist_item_count"`
}

// CustomerService 只读商城侧数据，商城业务不在本服务内
type CustomerService struct {
	db *gorm.DB
}

func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{db: db}
}

func (s *CustomerService) DetailsFor(conv *models.Conversation) (*CustomerDetails, error) {
	if conv.CustomerID == nil {
		return &CustomerDetails{
			Username:      "Guest User",
			Orders:        []models.Order{},
			CartItems:     []models.CartItem{},
			WishlistItems: []models.WishlistItem{},
		}, nil
	}

	var customer models.User
	if err := s.db.First(&customer, *conv.CustomerID).Error; err != nil {
		return nil, err
	}

	details := &CustomerDetails{
		UserID:        conv.CustomerID,
		Username:      customer.Username,
		Email:         customer.Email,
		Orders:        []models.Order{},
		CartItems:     []models.CartItem{},
		WishlistItems: []models.WishlistItem{},
	}

	// 最近 10 单
	if err := s.db.Where("user_id = ?", customer.ID).
		Order("created_at DESC").Limit(10).
		Preload("Items").
		Find(&details.Orders).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Order{}).
		Where("user_id = ?", customer.ID).
		Count(&details.OrderCount).Error; err != nil {
		return nil, err
	}

	// 购物车（没有就算空）
	var cart models.Cart
	err := s.db.Where("user_id = ?", customer.ID).Preload("Items").First(&cart).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		details.CartItems = cart.Items
		for _, item := range cart.Items {
			details.CartItemCount += item.Quantity
		}
	}

	// 心愿单
	var wishlist models.Wishlist
	err = s.db.Where("user_id = ?", customer.ID).Preload("Items").First(&wishlist).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		details.WishlistItems = wishlist.Items
		details.WishlistItemCount = len(wishlist.Items)
	}

	return details, nil
}
