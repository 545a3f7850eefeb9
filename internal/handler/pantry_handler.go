package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pantryman/internal/middleware"
	"github.com/hitoshi/pantryman/internal/model"
	"github.com/hitoshi/pantryman/internal/pantry"
)

// PantryServiceInterface は食材ハンドラーが必要とするサービスインターフェース。
// ownerは常に認証済みユーザーのSubjectID。
type PantryServiceInterface interface {
	List(ctx context.Context, owner string) ([]*model.PantryItem, error)
	Summary(ctx context.Context, owner string) (*model.UrgencySummary, error)
	Get(ctx context.Context, owner, id string) (*model.PantryItem, error)
	Create(ctx context.Context, owner string, in pantry.ItemInput) (*model.PantryItem, error)
	Update(ctx context.Context, owner, id string, in pantry.ItemInput) (*model.PantryItem, error)
	Delete(ctx context.Context, owner, id string) (*model.PantryItem, error)
}

// PantryOperationRecorder は食材操作を記録するインターフェース。
type PantryOperationRecorder interface {
	RecordPantryOperation(operation string)
}

// PantryItemHandler は食材管理のHTTPハンドラー。
type PantryItemHandler struct {
	service  PantryServiceInterface
	recorder PantryOperationRecorder
}

// NewPantryItemHandler はPantryItemHandlerを生成する。recorderはnilでもよい。
func NewPantryItemHandler(service PantryServiceInterface, recorder PantryOperationRecorder) *PantryItemHandler {
	return &PantryItemHandler{
		service:  service,
		recorder: recorder,
	}
}

// pantryItemResponse は食材のAPIレスポンス。
type pantryItemResponse struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Quantity   float64   `json:"quantity"`
	Unit       string    `json:"unit"`
	ExpiryDate string    `json:"expiryDate"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// pantryItemRequest は食材の作成・更新リクエストのボディ。
// 未指定およびnullのフィールドはnilになる。所有者はボディから受け付けない。
type pantryItemRequest struct {
	Name       *string  `json:"name"`
	Category   *string  `json:"category"`
	Quantity   *float64 `json:"quantity"`
	Unit       *string  `json:"unit"`
	ExpiryDate *string  `json:"expiryDate"`
}

func (req pantryItemRequest) toInput() pantry.ItemInput {
	return pantry.ItemInput{
		Name:       req.Name,
		Category:   req.Category,
		Quantity:   req.Quantity,
		Unit:       req.Unit,
		ExpiryDate: req.ExpiryDate,
	}
}

// deleteResponse は食材削除APIのレスポンス。
type deleteResponse struct {
	Message string             `json:"message"`
	Item    pantryItemResponse `json:"item"`
}

// summaryCounts は分類ごとの件数。
type summaryCounts struct {
	Expired      int `json:"expired"`
	ExpiringSoon int `json:"expiringSoon"`
	Fresh        int `json:"fresh"`
	Total        int `json:"total"`
}

// summaryResponse は賞味期限による分類結果のAPIレスポンス。
type summaryResponse struct {
	Expired      []pantryItemResponse `json:"expired"`
	ExpiringSoon []pantryItemResponse `json:"expiringSoon"`
	Fresh        []pantryItemResponse `json:"fresh"`
	Counts       summaryCounts        `json:"counts"`
}

func toPantryItemResponse(item *model.PantryItem) pantryItemResponse {
	return pantryItemResponse{
		ID:         item.ID,
		OwnerID:    item.OwnerSubjectID,
		Name:       item.Name,
		Category:   string(item.Category),
		Quantity:   item.Quantity,
		Unit:       string(item.Unit),
		ExpiryDate: item.ExpiryDate.UTC().Format(model.DateLayout),
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
}

func toPantryItemResponses(items []*model.PantryItem) []pantryItemResponse {
	results := make([]pantryItemResponse, len(items))
	for i, item := range items {
		results[i] = toPantryItemResponse(item)
	}
	return results
}

func (h *PantryItemHandler) record(operation string) {
	if h.recorder != nil {
		h.recorder.RecordPantryOperation(operation)
	}
}

// ListItems は食材一覧を賞味期限の昇順で返す。
// GET /api/pantry-items
func (h *PantryItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), user.SubjectID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPantryItemResponses(items))
}

// Summary は食材を期限切れ・期限間近・余裕ありに分類して返す。
// GET /api/pantry-items/summary
func (h *PantryItemHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Summary(r.Context(), user.SubjectID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		Expired:      toPantryItemResponses(summary.Expired),
		ExpiringSoon: toPantryItemResponses(summary.ExpiringSoon),
		Fresh:        toPantryItemResponses(summary.Fresh),
		Counts: summaryCounts{
			Expired:      len(summary.Expired),
			ExpiringSoon: len(summary.ExpiringSoon),
			Fresh:        len(summary.Fresh),
			Total:        len(summary.Expired) + len(summary.ExpiringSoon) + len(summary.Fresh),
		},
	})
}

// GetItem は食材を1件返す。
// GET /api/pantry-items/{id}
func (h *PantryItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	item, err := h.service.Get(r.Context(), user.SubjectID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPantryItemResponse(item))
}

// CreateItem は食材を登録する。
// POST /api/pantry-items
func (h *PantryItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req pantryItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	item, err := h.service.Create(r.Context(), user.SubjectID, req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.record("create")
	writeJSON(w, http.StatusCreated, toPantryItemResponse(item))
}

// UpdateItem は指定されたフィールドのみを更新する。
// PUT /api/pantry-items/{id}
func (h *PantryItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req pantryItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	item, err := h.service.Update(r.Context(), user.SubjectID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.record("update")
	writeJSON(w, http.StatusOK, toPantryItemResponse(item))
}

// DeleteItem は食材を削除し、削除前の内容を返す。
// DELETE /api/pantry-items/{id}
func (h *PantryItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	item, err := h.service.Delete(r.Context(), user.SubjectID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.record("delete")
	writeJSON(w, http.StatusOK, deleteResponse{
		Message: "食材を削除しました。",
		Item:    toPantryItemResponse(item),
	})
}
