package domain

import "time"

// Grouping holds the fields shared by bags and tags.
type Grouping struct {
	Syncable
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	IsPrivate   bool   `json:"is_private"`
}

// Bag is a user-defined container of products ("travel kit", "gym bag").
type Bag struct {
	Grouping
}

// Tag is a user-defined label attached to products.
type Tag struct {
	Grouping
}

// Association links a product to a bag or tag.
type Association struct {
	CreatedAt  time.Time  `json:"created_at"`
	ProductID  string     `json:"product_id"`
	GroupingID string     `json:"grouping_id"`
	Kind       EntityKind `json:"kind"`
}
