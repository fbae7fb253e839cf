package models

import "time"

type Category struct {
	CategoryID   int64     `json:"id"`
	RestaurantID string    `json:"restaurantId"`
	Name         string    `json:"name"`
	IconName     *string   `json:"iconName"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Item struct {
	ItemID       int64     `json:"id"`
	CategoryID   int64     `json:"categoryId"`
	RestaurantID string    `json:"restaurantId"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	Price        *float64  `json:"price"`
	ImageURL     *string   `json:"imageUrl"`
	AvailStatus  bool      `json:"availStatus"`
	PortionAvail bool      `json:"portionAvail"`
	Portions     []Portion `json:"portions"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Portion struct {
	PortionID int64   `json:"id"`
	ItemID    int64   `json:"itemId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}
