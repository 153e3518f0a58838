package models

import (
	"gorm.io/gorm"
)

// BucketType distinguishes shared buckets from per-channel ones.
type BucketType string

// Bucket types.
const (
	BucketTypeGlobal          BucketType = "global"
	BucketTypeChannelSpecific BucketType = "channel_specific"
)

// Bucket is an ordered logical collection of media files.
type Bucket struct {
	BaseModel

	Name string     `gorm:"not null;size:255" json:"name"`
	Type BucketType `gorm:"size:30;default:'global'" json:"type"`

	Description string `gorm:"type:text" json:"description,omitempty"`
}

// TableName returns the table name for Bucket.
func (Bucket) TableName() string {
	return "buckets"
}

// Validate performs basic validation on the bucket.
func (b *Bucket) Validate() error {
	if b.Name == "" {
		return ErrNameRequired
	}
	if b.Type != BucketTypeGlobal && b.Type != BucketTypeChannelSpecific {
		return ErrInvalidBucketType
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the bucket and generates ULID.
func (b *Bucket) BeforeCreate(tx *gorm.DB) error {
	if err := b.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if b.Type == "" {
		b.Type = BucketTypeGlobal
	}
	return b.Validate()
}

// BucketMedia is the ordered membership of a media file in a bucket.
type BucketMedia struct {
	BaseModel

	BucketID    ULID `gorm:"type:varchar(26);not null;index:idx_bucket_media,unique" json:"bucket_id"`
	MediaFileID ULID `gorm:"type:varchar(26);not null;index:idx_bucket_media,unique" json:"media_file_id"`

	// Position is the zero-based order of the file within the bucket.
	Position int `gorm:"not null;default:0;index" json:"position"`
}

// TableName returns the table name for BucketMedia.
func (BucketMedia) TableName() string {
	return "bucket_media"
}

// Validate performs basic validation on the membership row.
func (bm *BucketMedia) Validate() error {
	if bm.BucketID.IsZero() {
		return ErrBucketIDRequired
	}
	if bm.MediaFileID.IsZero() {
		return ErrValidation{Field: "media_file_id", Message: "is required"}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the row and generates ULID.
func (bm *BucketMedia) BeforeCreate(tx *gorm.DB) error {
	if err := bm.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return bm.Validate()
}

// ChannelBucket associates a bucket with a channel at a priority. Higher
// priority buckets contribute earlier in the static playlist.
type ChannelBucket struct {
	BaseModel

	ChannelID ULID `gorm:"type:varchar(26);not null;index:idx_channel_bucket,unique" json:"channel_id"`
	BucketID  ULID `gorm:"type:varchar(26);not null;index:idx_channel_bucket,unique" json:"bucket_id"`
	Priority  int  `gorm:"not null;default:1" json:"priority"`
}

// TableName returns the table name for ChannelBucket.
func (ChannelBucket) TableName() string {
	return "channel_buckets"
}

// Validate performs basic validation on the association.
func (cb *ChannelBucket) Validate() error {
	if cb.ChannelID.IsZero() {
		return ErrChannelIDRequired
	}
	if cb.BucketID.IsZero() {
		return ErrBucketIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the row and generates ULID.
func (cb *ChannelBucket) BeforeCreate(tx *gorm.DB) error {
	if err := cb.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return cb.Validate()
}
