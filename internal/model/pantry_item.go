// Package model はドメインモデルを定義する。
package model

import "time"

// Category は食材のカテゴリを表す。
type Category string

const (
	CategoryProduce   Category = "produce"
	CategoryDairy     Category = "dairy"
	CategoryMeat      Category = "meat"
	CategoryPantry    Category = "pantry"
	CategoryFrozen    Category = "frozen"
	CategoryBeverages Category = "beverages"
	CategoryOther     Category = "other"
)

// Categories は許可されたカテゴリの一覧。
var Categories = []Category{
	CategoryProduce, CategoryDairy, CategoryMeat, CategoryPantry,
	CategoryFrozen, CategoryBeverages, CategoryOther,
}

// Valid はカテゴリが許可された値かどうかを返す。
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Unit は数量の単位を表す。
type Unit string

const (
	UnitItem       Unit = "item"
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitLiter      Unit = "L"
	UnitMilliliter Unit = "ml"
	UnitCup        Unit = "cup"
	UnitTablespoon Unit = "tbsp"
	UnitTeaspoon   Unit = "tsp"
)

// Units は許可された単位の一覧。
var Units = []Unit{
	UnitItem, UnitKilogram, UnitGram, UnitLiter,
	UnitMilliliter, UnitCup, UnitTablespoon, UnitTeaspoon,
}

// Valid は単位が許可された値かどうかを返す。
func (u Unit) Valid() bool {
	for _, v := range Units {
		if u == v {
			return true
		}
	}
	return false
}

// DateLayout は賞味期限の日付フォーマット。
const DateLayout = "2006-01-02"

// PantryItem はユーザーが登録した食材を表す。
// OwnerSubjectIDは認証済みユーザーのSubjectIDからのみ設定される。
type PantryItem struct {
	ID             string
	OwnerSubjectID string
	Name           string
	Category       Category
	Quantity       float64
	Unit           Unit
	ExpiryDate     time.Time // UTCの0時に正規化した日付
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PantryItemPatch は食材の部分更新内容を表す。
// nilのフィールドは変更しない。
type PantryItemPatch struct {
	Name       *string
	Category   *Category
	Quantity   *float64
	Unit       *Unit
	ExpiryDate *time.Time
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p PantryItemPatch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.Quantity == nil && p.Unit == nil && p.ExpiryDate == nil
}

// UrgencySummary は賞味期限までの日数で食材を分類した結果。
// 各スライスは賞味期限の昇順。
type UrgencySummary struct {
	Expired      []*PantryItem
	ExpiringSoon []*PantryItem
	Fresh        []*PantryItem
}
