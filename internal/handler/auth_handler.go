package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// AuthHandler はログインとプロフィール取得のHTTPハンドラー。
// トークンの検証とユーザーの解決は認証ミドルウェアが済ませている。
type AuthHandler struct{}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// userResponse はユーザーの公開プロフィール。
type userResponse struct {
	SubjectID   string    `json:"subjectId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL"`
	CreatedAt   time.Time `json:"createdAt"`
}

// loginResponse はログインAPIのレスポンス。
type loginResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// profileResponse はプロフィールAPIのレスポンス。
type profileResponse struct {
	User userResponse `json:"user"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		SubjectID:   u.SubjectID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		CreatedAt:   u.CreatedAt,
	}
}

// Login は認証済みユーザーの公開プロフィールを返す。
// 初回ログイン時のユーザー作成は認証ミドルウェアで行われる。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "ログインしました。",
		User:    toUserResponse(user),
	})
}

// Profile は認証済みユーザーを返す。
// GET /api/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{User: toUserResponse(user)})
}
