package model

// User roles as reported by the portal backend.
const (
	RoleStudent            = "student"
	RoleDepartmentGovernor = "department-governor"
	RoleFacultyGovernor    = "faculty-governor"
	RoleAdmin              = "admin"
)

// Room types.
const (
	RoomTypeGeneral    = "General"
	RoomTypeDepartment = "Department"
	RoomTypeCustom     = "Custom"
)

// Notification types.
const (
	NotificationUrgent  = "urgent"
	NotificationRegular = "regular"
	NotificationCruise  = "cruise"
)

type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Phone          string `json:"phone"`
	RegNumber      string `json:"reg_number,omitempty"`
	Role           string `json:"role"`
	DepartmentName string `json:"department_name,omitempty"`
	CreatedAt      string `json:"created_at"`
	TutorialSeen   bool   `json:"tutorial_seen"`
}

type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Room struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	DepartmentName string `json:"department_name,omitempty"`
	CreatedByID    int64  `json:"created_by_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// Message is a single chat message. Reactions maps an emoji symbol to the
// ids of users who applied it. Records are replaced wholesale on edit and
// removed on delete, never merged field by field.
type Message struct {
	ID             int64              `json:"id"`
	SenderID       int64              `json:"sender_id,omitempty"`
	SenderUsername string             `json:"sender_username"`
	RoomID         int64              `json:"room_id"`
	Text           string             `json:"text"`
	Formatting     map[string]any     `json:"formatting,omitempty"`
	ImageFilename  string             `json:"image_filename,omitempty"`
	ImageExpiresAt string             `json:"image_expires_at,omitempty"`
	ReplyTo        int64              `json:"reply_to,omitempty"`
	EditedAt       string             `json:"edited_at,omitempty"`
	DeletedAt      string             `json:"deleted_at,omitempty"`
	Reactions      map[string][]int64 `json:"reactions,omitempty"`
	Timestamp      string             `json:"timestamp"`
}

type Notification struct {
	ID                   int64              `json:"id"`
	Type                 string             `json:"type"`
	Content              string             `json:"content"`
	Timestamp            string             `json:"timestamp"`
	PostedByID           int64              `json:"posted_by_id"`
	PostedByUsername     string             `json:"posted_by_username"`
	TargetDepartmentName string             `json:"target_department_name,omitempty"`
	Reactions            map[string][]int64 `json:"reactions,omitempty"`
	ReadBy               []int64            `json:"read_by,omitempty"`
}

type Document struct {
	ID            int64  `json:"id"`
	OwnerID       int64  `json:"owner_id"`
	OwnerUsername string `json:"owner_username"`
	Filename      string `json:"filename"`
	Mime          string `json:"mime"`
	UploadedAt    string `json:"uploaded_at"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	Watermark     bool   `json:"watermark"`
}

// ChatImage is the result of a chat image upload. The filename is embedded
// into the send_message payload; the file itself expires server-side.
type ChatImage struct {
	Filename  string `json:"filename"`
	ExpiresAt string `json:"expires_at"`
}

// PushSubscription mirrors the browser push subscription JSON.
type PushSubscription struct {
	Endpoint string            `json:"endpoint"`
	Keys     map[string]string `json:"keys,omitempty"`
}
