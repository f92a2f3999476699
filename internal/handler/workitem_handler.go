package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/resolver"
	"github.com/hitoshi/taskman/internal/workitem"
)

// WorkItemServiceInterface は作業アイテムハンドラーが必要とするサービスインターフェース。
type WorkItemServiceInterface interface {
	// List は作業アイテム一覧をidentity解決済みで返す。
	List(ctx context.Context, limit, offset int) ([]*model.WorkItem, resolver.Stats, error)
	// Get は指定IDの作業アイテムをidentity解決済みで返す。
	Get(ctx context.Context, id string) (*model.WorkItem, error)
	// Create は新規作業アイテムを作成する。
	Create(ctx context.Context, input workitem.CreateInput) (*model.WorkItem, error)
}

// WorkItemHandler は作業アイテムのHTTPハンドラー。
type WorkItemHandler struct {
	service WorkItemServiceInterface
}

// NewWorkItemHandler はWorkItemHandlerを生成する。
func NewWorkItemHandler(service WorkItemServiceInterface) *WorkItemHandler {
	return &WorkItemHandler{
		service: service,
	}
}

// listItemsResponse は一覧レスポンス。解決統計を観測用に同梱する。
type listItemsResponse struct {
	Items []*model.WorkItem `json:"items"`
	Stats resolver.Stats    `json:"stats"`
}

// createItemRequest は作業アイテム作成リクエストのボディ。
type createItemRequest struct {
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	Refs        map[string]string `json:"refs"`
}

// ListItems は作業アイテム一覧をidentity解決済みで取得する。
// GET /api/items?limit=50&offset=0
func (h *WorkItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 0)
	offset := parseIntQuery(r, "offset", 0)

	items, stats, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if items == nil {
		items = []*model.WorkItem{}
	}
	writeJSON(w, http.StatusOK, listItemsResponse{Items: items, Stats: stats})
}

// GetItem は指定IDの作業アイテムをidentity解決済みで取得する。
// GET /api/items/{id}
func (h *WorkItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// CreateItem は新規作業アイテムを作成する。
// POST /api/items
func (h *WorkItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディのJSONが不正です"))
		return
	}

	item, err := h.service.Create(r.Context(), workitem.CreateInput{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Refs:        req.Refs,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// parseIntQuery はクエリパラメータを整数として読む。不正・未指定はデフォルト値。
func parseIntQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
