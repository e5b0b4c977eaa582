package db

// ProjectProgress GET /projects/:id/progress 的响应
type ProjectProgress struct {
	ProjectID int `json:"project_id"`
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Percent   int `json:"percent"`
}
