package milvus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/edustack/knowledge-backend/internal/platform/logger"
)

const (
	chunkIDField  = "chunk_id"
	tenantIDField = "tenant_id"
	contentField  = "content"
	vectorField   = "vector"

	maxErrorBodyBytes = 1024

	// Server-side code Milvus returns for operations against a collection
	// that does not exist.
	serverCodeCollectionNotFound = 100
)

var pointIDNamespaceUUID = uuid.MustParse("8b6c2f8e-4f6e-4a3d-9d57-1f1df2a9c5b4")

// Row is one vector record keyed by chunk id.
type Row struct {
	ChunkID  string
	TenantID int64
	Content  string
	Vector   []float32
}

// Hit is one similarity-search result, ordered by descending score.
type Hit struct {
	ChunkID string
	Content string
	Score   float64
}

// Index is a per-tenant vector collection client. One collection exists per
// tenant; all operations address the tenant's collection by derived name.
type Index interface {
	CollectionName(tenantID int64) string
	HasCollection(ctx context.Context, tenantID int64) (bool, error)
	CreateCollection(ctx context.Context, tenantID int64) error
	LoadCollection(ctx context.Context, tenantID int64) error
	DropCollection(ctx context.Context, tenantID int64) error
	Insert(ctx context.Context, tenantID int64, rows []Row) error
	Search(ctx context.Context, tenantID int64, vector []float32, topK int) ([]Hit, error)
	DeleteByChunkID(ctx context.Context, tenantID int64, chunkID string) error
	CountRows(ctx context.Context, tenantID int64) (int64, error)
}

type index struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type milvusEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewIndex(log *logger.Logger, cfg Config) (Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}

	s := &index{
		log:     log.With("service", "MilvusIndex"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}

	if err := s.verifyReady(context.Background()); err != nil {
		return nil, err
	}

	log.Info(
		"Milvus index client ready",
		"url", s.baseURL,
		"collection_prefix", cfg.CollectionPrefix,
		"vector_dim", cfg.VectorDim,
		"metric", "COSINE",
	)
	return s, nil
}

func (s *index) CollectionName(tenantID int64) string {
	return fmt.Sprintf("%s_%d", s.cfg.CollectionPrefix, tenantID)
}

func (s *index) HasCollection(ctx context.Context, tenantID int64) (bool, error) {
	const op = "has_collection"
	var result struct {
		Has bool `json:"has"`
	}
	req := map[string]any{"collectionName": s.CollectionName(tenantID)}
	if err := s.doJSON(ctx, op, "/v2/vectordb/collections/has", req, &result); err != nil {
		return false, err
	}
	return result.Has, nil
}

func (s *index) CreateCollection(ctx context.Context, tenantID int64) error {
	const op = "create_collection"
	req := map[string]any{
		"collectionName": s.CollectionName(tenantID),
		"dimension":      s.cfg.VectorDim,
		"metricType":     "COSINE",
		"idType":         "VarChar",
		"autoId":         false,
		"params": map[string]any{
			"max_length": "128",
		},
	}
	return s.doJSON(ctx, op, "/v2/vectordb/collections/create", req, nil)
}

func (s *index) LoadCollection(ctx context.Context, tenantID int64) error {
	const op = "load_collection"
	req := map[string]any{"collectionName": s.CollectionName(tenantID)}
	return s.doJSON(ctx, op, "/v2/vectordb/collections/load", req, nil)
}

func (s *index) DropCollection(ctx context.Context, tenantID int64) error {
	const op = "drop_collection"
	req := map[string]any{"collectionName": s.CollectionName(tenantID)}
	return s.doJSON(ctx, op, "/v2/vectordb/collections/drop", req, nil)
}

func (s *index) Insert(ctx context.Context, tenantID int64, rows []Row) error {
	const op = "insert"
	if len(rows) == 0 {
		return nil
	}

	collection := s.CollectionName(tenantID)
	data := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		chunkID := strings.TrimSpace(r.ChunkID)
		if chunkID == "" {
			return opErr(op, OperationErrorValidation, "chunk id is required", nil)
		}
		if len(r.Vector) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("row %q has empty vector", chunkID), nil)
		}
		if s.cfg.VectorDim > 0 && len(r.Vector) != s.cfg.VectorDim {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf(
					"row %q dimension mismatch: expected=%d got=%d",
					chunkID,
					s.cfg.VectorDim,
					len(r.Vector),
				),
				nil,
			)
		}
		data = append(data, map[string]any{
			"id":          s.pointID(collection, chunkID),
			vectorField:   r.Vector,
			chunkIDField:  chunkID,
			tenantIDField: r.TenantID,
			contentField:  r.Content,
		})
	}

	req := map[string]any{
		"collectionName": collection,
		"data":           data,
	}
	var result struct {
		InsertCount int `json:"insertCount"`
	}
	if err := s.doJSON(ctx, op, "/v2/vectordb/entities/insert", req, &result); err != nil {
		return err
	}
	if result.InsertCount != 0 && result.InsertCount != len(rows) {
		return opErr(
			op,
			OperationErrorOpFailed,
			fmt.Sprintf("partial insert: want=%d acknowledged=%d", len(rows), result.InsertCount),
			nil,
		)
	}
	return nil
}

func (s *index) Search(ctx context.Context, tenantID int64, vector []float32, topK int) ([]Hit, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(vector) != s.cfg.VectorDim {
		return nil, opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector)),
			nil,
		)
	}
	if topK <= 0 {
		topK = 10
	}

	req := map[string]any{
		"collectionName": s.CollectionName(tenantID),
		"data":           [][]float32{vector},
		"annsField":      vectorField,
		"limit":          topK,
		"outputFields":   []string{chunkIDField, contentField},
	}
	var raw []map[string]any
	if err := s.doJSON(ctx, op, "/v2/vectordb/entities/search", req, &raw); err != nil {
		return nil, err
	}

	out := make([]Hit, 0, len(raw))
	for _, item := range raw {
		chunkID, _ := item[chunkIDField].(string)
		if strings.TrimSpace(chunkID) == "" {
			continue
		}
		content, _ := item[contentField].(string)
		score, _ := item["distance"].(float64)
		out = append(out, Hit{ChunkID: chunkID, Content: content, Score: score})
	}
	return out, nil
}

func (s *index) DeleteByChunkID(ctx context.Context, tenantID int64, chunkID string) error {
	const op = "delete"
	chunkID = strings.TrimSpace(chunkID)
	if chunkID == "" {
		return opErr(op, OperationErrorValidation, "chunk id is required", nil)
	}
	req := map[string]any{
		"collectionName": s.CollectionName(tenantID),
		"filter":         fmt.Sprintf(`%s == "%s"`, chunkIDField, escapeFilterValue(chunkID)),
	}
	return s.doJSON(ctx, op, "/v2/vectordb/entities/delete", req, nil)
}

func (s *index) CountRows(ctx context.Context, tenantID int64) (int64, error) {
	const op = "get_stats"
	req := map[string]any{"collectionName": s.CollectionName(tenantID)}
	var result struct {
		RowCount int64 `json:"rowCount"`
	}
	if err := s.doJSON(ctx, op, "/v2/vectordb/collections/get_stats", req, &result); err != nil {
		return 0, err
	}
	return result.RowCount, nil
}

func (s *index) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	var collections []string
	if err := s.doJSON(ctx, op, "/v2/vectordb/collections/list", map[string]any{}, &collections); err != nil {
		return err
	}
	return nil
}

func (s *index) doJSON(ctx context.Context, op, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "milvus request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := OperationErrorOpFailed
		if resp.StatusCode == http.StatusNotFound {
			code = OperationErrorNotFound
		}
		return &OperationError{
			Code:       code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("milvus http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope milvusEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode milvus envelope failed", err)
	}
	if envelope.Code != 0 {
		code := OperationErrorOpFailed
		if isCollectionNotFound(envelope) {
			code = OperationErrorNotFound
		}
		return &OperationError{
			Code:       code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("milvus server code=%d message=%q", envelope.Code, envelope.Message),
		}
	}

	if out == nil {
		return nil
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode milvus result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func isCollectionNotFound(envelope milvusEnvelope) bool {
	if envelope.Code == serverCodeCollectionNotFound {
		return true
	}
	msg := strings.ToLower(envelope.Message)
	return strings.Contains(msg, "collection not found") ||
		strings.Contains(msg, "can't find collection") ||
		strings.Contains(msg, "collection not exist")
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func escapeFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

// pointID derives a stable primary key from the collection and chunk id so
// re-inserting the same chunk overwrites rather than duplicates.
func (s *index) pointID(collection, chunkID string) string {
	deterministic := uuid.NewSHA1(pointIDNamespaceUUID, []byte(collection+"|"+chunkID))
	return deterministic.String()
}
