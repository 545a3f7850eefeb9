package pantry

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/pantryman/internal/model"
)

// MaxNameLength は食材名の最大文字数。
const MaxNameLength = 200

// ItemInput はクライアントから受け取った食材の入力値。
// nilのフィールドは未指定を表す。
type ItemInput struct {
	Name       *string
	Category   *string
	Quantity   *float64
	Unit       *string
	ExpiryDate *string
}

// validateCreate は作成時の入力を検証する。5つのフィールドすべてが必須。
func (s *Service) validateCreate(in ItemInput) (model.PantryItemPatch, error) {
	var missing []string
	if in.Name == nil {
		missing = append(missing, "name")
	}
	if in.Category == nil {
		missing = append(missing, "category")
	}
	if in.Quantity == nil {
		missing = append(missing, "quantity")
	}
	if in.Unit == nil {
		missing = append(missing, "unit")
	}
	if in.ExpiryDate == nil {
		missing = append(missing, "expiryDate")
	}
	if len(missing) > 0 {
		return model.PantryItemPatch{}, model.NewValidationError(strings.Join(missing, ", ") + " は必須です")
	}

	return s.validatePatch(in)
}

// validatePatch は指定されたフィールドの値を検証し、正規化した更新内容を返す。
func (s *Service) validatePatch(in ItemInput) (model.PantryItemPatch, error) {
	var patch model.PantryItemPatch

	if in.Name != nil {
		name, err := normalizeName(*in.Name)
		if err != nil {
			return patch, err
		}
		patch.Name = &name
	}

	if in.Category != nil {
		category := model.Category(*in.Category)
		if !category.Valid() {
			return patch, model.NewValidationError("category が不正です")
		}
		patch.Category = &category
	}

	if in.Quantity != nil {
		quantity := *in.Quantity
		if quantity < 0 {
			return patch, model.NewValidationError("quantity は0以上で指定してください")
		}
		patch.Quantity = &quantity
	}

	if in.Unit != nil {
		unit := model.Unit(*in.Unit)
		if !unit.Valid() {
			return patch, model.NewValidationError("unit が不正です")
		}
		patch.Unit = &unit
	}

	if in.ExpiryDate != nil {
		expiry, ok := ParseExpiryDate(*in.ExpiryDate)
		if !ok {
			return patch, model.NewValidationError("expiryDate は YYYY-MM-DD 形式で指定してください")
		}
		patch.ExpiryDate = &expiry
	}

	return patch, nil
}

// normalizeName は前後の空白を取り除いた食材名を返す。
// それ以外は送られたとおりに保存するため、記号や "<" を含む名前もそのまま残る。
// HTMLとして表示する側でエスケープすること。
func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", model.NewValidationError("name は空にできません")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", model.NewValidationError(fmt.Sprintf("name は%d文字以内で指定してください", MaxNameLength))
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", model.NewValidationError("name に制御文字は使用できません")
	}
	return name, nil
}

// ParseExpiryDate は YYYY-MM-DD または RFC 3339 形式の文字列をUTCの日付として解析する。
// RFC 3339の場合はUTCに変換した上で時刻を切り捨てる。
func ParseExpiryDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(model.DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return truncateToDate(t.UTC()), true
	}
	return time.Time{}, false
}

// truncateToDate は日付部分のみを残したUTCの0時に正規化する。
func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
