package model

// Folder is a remote-provider mailbox container.
type Folder struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TotalCount  int    `json:"total_count"`
	UnreadCount int    `json:"unread_count"`
}
