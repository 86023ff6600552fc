package models

import "gorm.io/gorm"

func AutoMigrateAll(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&SupportAgent{},
		&Conversation{},
		&Message{},
		&Attachment{},
		&Product{},
		&Order{},
		&OrderItem{},
		&Cart{},
		&CartItem{},
		&Wishlist{},
		&WishlistItem{},
	)
	if err != nil {
		return err
	}
	return nil
}
