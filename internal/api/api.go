package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"ipdr-backend/internal/auth"
	"ipdr-backend/internal/core"
	"ipdr-backend/internal/database"
	"ipdr-backend/internal/query"
	"ipdr-backend/internal/records"
	"ipdr-backend/internal/reports"
	"ipdr-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const (
	MaxUploadBytes   = 256 << 20
	maxMemoryUploads = 32 << 20
)

// Predictor labels every row of an uploaded table.
type Predictor interface {
	Predict(table *core.Table) (core.Prediction, error)
}

type BackendService struct {
	db        *gorm.DB
	predictor Predictor
	store     *records.Store
	query     *query.Engine
	reports   *reports.Engine
	auth      *auth.Service
}

func NewBackendService(db *gorm.DB, predictor Predictor, store *records.Store, reportEngine *reports.Engine, authService *auth.Service) *BackendService {
	return &BackendService{
		db:        db,
		predictor: predictor,
		store:     store,
		query:     query.NewEngine(store),
		reports:   reportEngine,
		auth:      authService,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Post("/predict-file", RestHandler(s.PredictFile))

	r.Route("/data", func(r chi.Router) {
		r.Get("/list", RestHandler(s.ListData))
		r.Get("/view", RestHandler(s.ViewData))
		r.Delete("/delete", RestHandler(s.DeleteData))
	})

	r.Get("/ml/results", RestHandler(s.GetResults))
	r.Get("/search", RestHandler(s.Search))

	r.Route("/reports", func(r chi.Router) {
		r.Get("/summary", RestHandler(s.ReportSummary))
		r.Get("/export", FileHandler(s.ExportReport))
		r.Get("/export_pdf", FileHandler(s.ExportPDF))
	})

	r.Get("/system/status", RestHandler(s.SystemStatus))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", RestHandler(s.Register))
		r.Post("/login", RestHandler(s.Login))
		r.Get("/users", RestHandler(s.ListUsers))
	})
}

// domainError maps domain errors to status codes. Errors that are not recognized
// become 500s.
func domainError(err error) error {
	switch {
	case errors.Is(err, core.ErrMalformedInput):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, core.ErrNoNumericFeatures):
		return CodedError(http.StatusUnprocessableEntity, err)
	case errors.Is(err, records.ErrNotFound):
		return CodedError(http.StatusNotFound, err)
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrInvalidPassword):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return CodedError(http.StatusUnauthorized, err)
	}
	return CodedError(http.StatusInternalServerError, err)
}

func toPredictionDetail(rec core.Record) api.PredictionDetail {
	detail := api.PredictionDetail{
		Row:        rec.Row,
		Prediction: rec.Label,
		Ip:         rec.Ip,
		Msisdn:     rec.Msisdn,
		Timestamp:  rec.Timestamp,
		Confidence: rec.Confidence,
	}
	if rec.Volume != nil {
		detail.Volume = *rec.Volume
	} else if rec.VolumeRaw != nil {
		detail.Volume = *rec.VolumeRaw
	}
	return detail
}

func (s *BackendService) PredictFile(r *http.Request) (any, error) {
	if err := r.ParseMultipartForm(maxMemoryUploads); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "error parsing multipart request: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing 'file' in upload: %v", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "error reading upload: %v", err)
	}
	if len(raw) > MaxUploadBytes {
		return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "upload exceeds %d bytes", MaxUploadBytes)
	}

	table, err := core.ReadTable(bytes.NewReader(raw))
	if err != nil {
		return nil, domainError(err)
	}

	prediction, err := s.predictor.Predict(table)
	if err != nil {
		return nil, domainError(err)
	}

	mapping := core.ResolveKeyColumns(table.Columns)

	dataset, err := s.store.Ingest(r.Context(), raw, table, prediction, mapping)
	if err != nil {
		slog.Error("error ingesting upload", "filename", header.Filename, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "prediction failed: %v", err)
	}

	slog.Info("processed upload", "filename", header.Filename, "dataset_id", dataset.Id, "rows", dataset.RowCount)

	detailed := make([]api.PredictionDetail, 0, table.Len())
	for _, rec := range core.BuildRecords(table, prediction, mapping) {
		detailed = append(detailed, toPredictionDetail(rec))
	}

	return api.PredictFileResponse{
		Predictions: prediction.Labels,
		N:           len(prediction.Labels),
		File:        dataset.Id,
		Detailed:    detailed,
	}, nil
}

func (s *BackendService) ListData(r *http.Request) (any, error) {
	datasets, err := s.store.List(r.Context())
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing uploads: %v", err)
	}

	ids := make([]string, 0, len(datasets))
	for _, d := range datasets {
		ids = append(ids, d.Id)
	}
	return ids, nil
}

func (s *BackendService) ViewData(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ViewRequest](r)
	if err != nil {
		return nil, err
	}

	view, err := s.query.ViewPage(r.Context(), params.File, params.Page, params.PageSize)
	if err != nil {
		return nil, domainError(err)
	}

	return api.ViewResponse{
		Columns:   view.Columns,
		Rows:      view.Rows,
		Page:      view.Page,
		PageSize:  view.PageSize,
		TotalRows: view.TotalRows,
	}, nil
}

func (s *BackendService) DeleteData(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.DeleteRequest](r)
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(r.Context(), params.File); err != nil {
		return nil, domainError(err)
	}

	return api.StatusResponse{Status: "ok", Message: fmt.Sprintf("File %s deleted successfully", params.File)}, nil
}

func (s *BackendService) GetResults(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ResultsRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	labels, err := s.store.Labels(ctx, params.File)
	if err != nil {
		return nil, domainError(err)
	}

	page, total, err := s.store.GetRecords(ctx, params.File, query.PageOffset(params.Page, params.PageSize), params.PageSize)
	if err != nil {
		return nil, domainError(err)
	}

	detailed := make([]api.PredictionDetail, 0, len(page))
	for _, rec := range page {
		detailed = append(detailed, toPredictionDetail(rec))
	}

	return api.ResultsResponse{
		File:        params.File,
		Predictions: labels,
		N:           len(labels),
		Detailed:    detailed,
		Page:        params.Page,
		PageSize:    params.PageSize,
		Total:       total,
	}, nil
}

func (s *BackendService) Search(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.SearchRequest](r)
	if err != nil {
		return nil, err
	}

	from, err := query.ParseDateBound(params.DateFrom, false)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid date_from: %v", err)
	}
	to, err := query.ParseDateBound(params.DateTo, true)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid date_to: %v", err)
	}

	filter := query.Filter{
		File:      params.File,
		Ip:        params.Ip,
		Msisdn:    params.Msisdn,
		MinVolume: params.MinVolume,
		DateFrom:  from,
		DateTo:    to,
	}

	result, err := s.query.Search(r.Context(), filter, params.Page, params.PageSize)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "search failed: %v", err)
	}

	return api.SearchResponse{
		Rows:            result.Rows,
		Page:            result.Page,
		PageSize:        result.PageSize,
		TotalFound:      result.TotalFound,
		Truncated:       result.Truncated,
		DatasetsScanned: result.DatasetsScanned,
	}, nil
}

func (s *BackendService) ReportSummary(r *http.Request) (any, error) {
	summary, err := s.reports.Summary(r.Context())
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error computing summary: %v", err)
	}
	return api.SummaryResponse{TotalPredictions: summary.TotalPredictions, ByLabel: summary.ByLabel}, nil
}

func (s *BackendService) ExportReport(r *http.Request) (FileResponse, error) {
	params, err := ParseRequestQueryParams[api.ExportRequest](r)
	if err != nil {
		return FileResponse{}, err
	}

	ctx := r.Context()

	switch params.Format {
	case "xlsx":
		return FileResponse{
			Name:        "predictions_export.xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Write:       func(w io.Writer) error { return s.reports.WriteXLSX(ctx, w) },
		}, nil
	default:
		return FileResponse{
			Name:        "predictions_export.csv",
			ContentType: "text/csv",
			Write:       func(w io.Writer) error { return s.reports.WriteCSV(ctx, w) },
		}, nil
	}
}

func (s *BackendService) ExportPDF(r *http.Request) (FileResponse, error) {
	ctx := r.Context()
	return FileResponse{
		Name:        "ipdr_report.pdf",
		ContentType: "application/pdf",
		Write:       func(w io.Writer) error { return s.reports.WritePDF(ctx, w) },
	}, nil
}

func (s *BackendService) SystemStatus(r *http.Request) (any, error) {
	ctx := r.Context()

	counts, err := database.GetCounts(ctx, s.db)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading system status: %v", err)
	}

	orphans, err := s.store.OrphanedObjects(ctx)
	if err != nil {
		slog.Warn("unable to check for orphaned uploads", "error", err)
	}
	if orphans == nil {
		orphans = []string{}
	}

	return api.SystemStatusResponse{
		TotalUploads:     counts.Datasets,
		TotalPredictions: counts.Predictions,
		UserCount:        counts.Users,
		OrphanedUploads:  orphans,
	}, nil
}

func (s *BackendService) Register(r *http.Request) (any, error) {
	req, err := ParseRequest[api.RegisterRequest](r)
	if err != nil {
		return nil, err
	}

	user, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return nil, domainError(err)
	}

	return api.RegisterResponse{Status: "ok", Email: user.Email}, nil
}

func (s *BackendService) Login(r *http.Request) (any, error) {
	req, err := ParseRequest[api.LoginRequest](r)
	if err != nil {
		return nil, err
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return nil, domainError(err)
	}

	return api.LoginResponse{Token: session.Token, Name: session.Name}, nil
}

func (s *BackendService) ListUsers(r *http.Request) (any, error) {
	users, err := s.auth.ListUsers(r.Context())
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing users: %v", err)
	}

	out := make([]api.User, 0, len(users))
	for _, u := range users {
		out = append(out, api.User{Email: u.Email, Name: u.Name, Status: u.Status})
	}
	return out, nil
}
