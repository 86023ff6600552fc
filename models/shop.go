package models

import "time"

// 商城侧的记录。客服端只读这些表（客户详情面板），
// 商品/订单/购物车的业务逻辑不在本服务内。

type Product struct {
	ID       uint    `json:"id" gorm:"primaryKey"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url"`
}

type Order struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	UserID          uint      `json:"user_id" gorm:"index"`
	DeliveryAddress string    `json:"delivery_address"`
	Status          string    `json:"status"` // processing, in-transit, delivered
	CreatedAt       time.Time `json:"created_at"`
	// 关联
	Items []OrderItem `json:"items" gorm:"foreignKey:OrderID"`
}

type OrderItem struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	OrderID     uint    `json:"order_id" gorm:"index"`
	ProductID   uint    `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type Cart struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// 关联
	Items []CartItem `json:"items" gorm:"foreignKey:CartID"`
}

type CartItem struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	CartID      uint    `json:"cart_id" gorm:"index"`
	ProductID   uint    `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
}

type Wishlist struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
	// 关联
	Items []WishlistItem `json:"items" gorm:"foreignKey:WishlistID"`
}

type WishlistItem struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	WishlistID  uint      `json:"wishlist_id" gorm:"index"`
	ProductID   uint      `json:"product_id"`
	ProductName string    `json:"product_name"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}
