package models

type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type LibraryMatchRequest struct {
	JobDescription string `json:"job_description"`
}

type JobAcceptedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type JobStatusResponse struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Result       *MatchResponse `json:"result,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}
