package model

import "time"

// WriteStatus is the outcome of the background durable write.
// Transitions only move forward: Pending -> Stored|Failed -> Deleted.
type WriteStatus int8

const (
	WriteStatusPending WriteStatus = 0
	WriteStatusStored  WriteStatus = 1
	WriteStatusFailed  WriteStatus = 2
	WriteStatusDeleted WriteStatus = 3
)

func (s WriteStatus) String() string {
	switch s {
	case WriteStatusPending:
		return "pending"
	case WriteStatusStored:
		return "stored"
	case WriteStatusFailed:
		return "failed"
	case WriteStatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

type ObjectRecord struct {
	ID uint64 `gorm:"primaryKey" json:"-"`

	ObjectID    string  `gorm:"column:object_id;size:64;uniqueIndex;not null" json:"object_id"`
	OwnerUserID uint64  `gorm:"column:owner_user_id;not null;index:idx_owner_fixed,priority:1" json:"owner_user_id"`
	DocumentID  *uint64 `gorm:"column:document_id" json:"document_id,omitempty"`

	Name        string `gorm:"column:name;size:255;not null" json:"name"`
	ContentType string `gorm:"column:content_type;size:128;not null" json:"content_type"`
	SizeBytes   int64  `gorm:"column:size_bytes;not null" json:"size_bytes"`

	Location    *string     `gorm:"column:location;size:1024" json:"location,omitempty"`
	WriteStatus WriteStatus `gorm:"column:write_status;not null;default:0" json:"write_status"`
	Fixed       bool        `gorm:"column:fixed;not null;default:false;index:idx_owner_fixed,priority:2" json:"fixed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (ObjectRecord) TableName() string {
	return "object_record"
}

// Live reports whether the record can still be fetched or committed.
func (r *ObjectRecord) Live() bool {
	return r.WriteStatus != WriteStatusDeleted
}

/*
location 与 document_id 使用指针: 写盘完成前 location 不存在, 提交前 document_id 不存在
fixed = true 时 document_id 必定有值, 由 Fix 在同一条 UPDATE 中同时写入
*/
