package models

import (
	"time"

	"gorm.io/gorm"
)

// Category represents place categories
// DB: categories
type Category struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"column:name;size:100;not null;uniqueIndex:categories_name_key" json:"name"`
	DisplayOrder int       `gorm:"column:display_order;not null;default:99" json:"display_order"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`

	// Relations
	Places []Place `gorm:"foreignKey:CategoryID" json:"places,omitempty"`
}

func (Category) TableName() string {
	return "categories"
}

// Tag represents free-form place tags
// DB: tags
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"column:name;size:100;not null;uniqueIndex:tags_name_key" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (Tag) TableName() string {
	return "tags"
}

// Place represents a saved place
// DB: place
type Place struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	UserID      *uint    `gorm:"column:user_id;index:idx_place_user" json:"user_id,omitempty"`
	CategoryID  *uint    `gorm:"column:category_id;index:idx_place_category" json:"category_id,omitempty"`
	Name        string   `gorm:"column:name;size:255;not null;index:idx_place_name" json:"name"`
	Description *string  `gorm:"column:description;type:text" json:"description,omitempty"`
	Address     *string  `gorm:"column:address;type:text" json:"address,omitempty"`
	Lat         *float64 `gorm:"column:lat;type:double precision" json:"lat,omitempty"`
	Lng         *float64 `gorm:"column:lng;type:double precision" json:"lng,omitempty"`
	ImgURL      *string  `gorm:"column:img_url;type:text" json:"img_url,omitempty"`
	ContentLink *string  `gorm:"column:content_link;type:text" json:"content_link,omitempty"`
	Region      *string  `gorm:"column:region;size:100;index:idx_place_region" json:"region,omitempty"`
	Status      *string  `gorm:"column:status;size:20;index:idx_place_status" json:"status,omitempty"`
	// 추천/부스팅에 쓰이는 인기 지표
	Popularity int            `gorm:"column:popularity;not null;default:0" json:"popularity"`
	VisitCount int            `gorm:"column:visit_count;not null;default:0" json:"visit_count"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null;index:idx_place_created,sort:desc" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index:idx_place_deleted" json:"deleted_at,omitempty"`

	// Relations
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Tags     []Tag     `gorm:"many2many:place_tags;" json:"tags,omitempty"`
}

func (Place) TableName() string {
	return "place"
}

// PlaceStatusActive 검색 대상이 되는 기본 상태값
const PlaceStatusActive = "active"
