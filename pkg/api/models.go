package api

type PredictionDetail struct {
	Row        int      `json:"row"`
	Prediction string   `json:"prediction"`
	Ip         *string  `json:"ip"`
	Msisdn     *string  `json:"msisdn"`
	Timestamp  *string  `json:"timestamp"`
	Volume     any      `json:"volume"`
	Confidence *float64 `json:"confidence"`
}

type PredictFileResponse struct {
	Predictions []string           `json:"predictions"`
	N           int                `json:"n"`
	File        string             `json:"file"`
	Detailed    []PredictionDetail `json:"detailed"`
}

type ViewRequest struct {
	File     string `schema:"file" validate:"required"`
	Page     int    `schema:"page,default:0" validate:"min=0,max=1000000"`
	PageSize int    `schema:"page_size,default:20" validate:"min=1,max=1000"`
}

type ViewResponse struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Page      int              `json:"page"`
	PageSize  int              `json:"page_size"`
	TotalRows int              `json:"total_rows"`
}

type DeleteRequest struct {
	File string `schema:"file" validate:"required"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ResultsRequest struct {
	File     string `schema:"file" validate:"required"`
	Page     int    `schema:"page,default:0" validate:"min=0,max=1000000"`
	PageSize int    `schema:"page_size,default:50" validate:"min=1,max=1000"`
}

type ResultsResponse struct {
	File        string             `json:"file"`
	Predictions []string           `json:"predictions"`
	N           int                `json:"n"`
	Detailed    []PredictionDetail `json:"detailed"`
	Page        int                `json:"page"`
	PageSize    int                `json:"page_size"`
	Total       int                `json:"total"`
}

type SearchRequest struct {
	File      string   `schema:"file"`
	Ip        string   `schema:"ip"`
	Msisdn    string   `schema:"msisdn"`
	DateFrom  string   `schema:"date_from"`
	DateTo    string   `schema:"date_to"`
	MinVolume *float64 `schema:"min_volume"`
	Page      int      `schema:"page,default:0" validate:"min=0,max=1000000"`
	PageSize  int      `schema:"page_size,default:50" validate:"min=1,max=1000"`
}

type SearchResponse struct {
	Rows            []map[string]any `json:"rows"`
	Page            int              `json:"page"`
	PageSize        int              `json:"page_size"`
	TotalFound      int              `json:"total_found"`
	Truncated       bool             `json:"truncated"`
	DatasetsScanned int              `json:"datasets_scanned"`
}

type SummaryResponse struct {
	TotalPredictions int64            `json:"total_predictions"`
	ByLabel          map[string]int64 `json:"by_label"`
}

type ExportRequest struct {
	Format string `schema:"format,default:csv" validate:"oneof=csv xlsx"`
}

type SystemStatusResponse struct {
	TotalUploads     int64    `json:"total_uploads"`
	TotalPredictions int64    `json:"total_predictions"`
	UserCount        int64    `json:"user_count"`
	OrphanedUploads  []string `json:"orphaned_uploads"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterResponse struct {
	Status string `json:"status"`
	Email  string `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

type User struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"`
}
