package model

// Circular easy_circulars.circulars 集合中的一份通函。_id 为通函编号。
type Circular struct {
	CircularID     string   `json:"circular_id" bson:"_id"`
	Title          string   `json:"title" bson:"title"`
	Tags           []string `json:"tags" bson:"tags"`
	Date           string   `json:"date" bson:"date"`
	Bookmark       bool     `json:"bookmark" bson:"bookmark"`
	Path           string   `json:"path,omitempty" bson:"path,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty" bson:"conversation_id,omitempty"`
	References     []string `json:"references" bson:"references"`
	PDFURL         string   `json:"pdf_url,omitempty" bson:"pdf_url,omitempty"`
}

// CircularUpdateRequest 更新通函的书签或关联会话，未提供的字段保持不变。
type CircularUpdateRequest struct {
	CircularID     string  `json:"circular_id" binding:"required"`
	Bookmark       *bool   `json:"bookmark"`
	ConversationID *string `json:"conversation_id"`
}

// Empty 没有任何需要更新的字段。
func (r *CircularUpdateRequest) Empty() bool {
	return r.Bookmark == nil && r.ConversationID == nil
}

// CircularQuery 通函查询参数。bookmark 优先于 circular_id，均未提供时返回全部通函。
type CircularQuery struct {
	CircularID string `form:"circular_id"`
	Bookmark   bool   `form:"bookmark"`
}

// CircularDetail 单个通函及其引用的通函。
type CircularDetail struct {
	Circular   *Circular  `json:"circular"`
	References []Circular `json:"references"`
}
