package models

import "time"

// Message is sent by a buyer to the seller of ProductID. Only IsRead changes after creation.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	SenderID   uint      `gorm:"not null;index;check:chk_messages_not_self,sender_id <> receiver_id" json:"sender_id"`
	ReceiverID uint      `gorm:"not null;index:idx_messages_receiver_timestamp,priority:1" json:"receiver_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Timestamp  time.Time `gorm:"autoCreateTime;index:idx_messages_receiver_timestamp,priority:2,sort:desc" json:"timestamp"`
	IsRead     bool      `gorm:"not null;default:false" json:"is_read"`
}

func (Message) TableName() string {
	return "messages"
}
