package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/sentilens/internal/analysis"
	"github.com/hitoshi/sentilens/internal/model"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator はJSONタグ名でエラーを報告するバリデータを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate はJSONボディをdstに読み込み、validateタグで検証する。
// 未知のフィールドは拒否する。
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewInvalidRequestError("リクエストボディが空です")
		}
		return model.NewInvalidRequestError("JSONの形式が不正です")
	}
	if dec.More() {
		return model.NewInvalidRequestError("JSONの形式が不正です")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError は最初の検証エラーを項目名付きのメッセージに変換する。
func validationError(err error) *model.APIError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewInvalidRequestError("入力内容が不正です")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return model.NewInvalidRequestError(fmt.Sprintf("%s は必須です", fe.Field()))
	case "email":
		return model.NewInvalidRequestError(fmt.Sprintf("%s はメールアドレスの形式で指定してください", fe.Field()))
	case "uuid":
		return model.NewInvalidRequestError(fmt.Sprintf("%s はUUIDで指定してください", fe.Field()))
	case "oneof":
		return model.NewInvalidRequestError(fmt.Sprintf("%s は %s のいずれかを指定してください", fe.Field(), fe.Param()))
	case "min", "max", "gte", "lte":
		return model.NewInvalidRequestError(fmt.Sprintf("%s の値が範囲外です（%s=%s）", fe.Field(), fe.Tag(), fe.Param()))
	default:
		return model.NewInvalidRequestError(fmt.Sprintf("%s が不正です", fe.Field()))
	}
}

// parsePage はクエリのpageとlimitを読み取る。
// 省略時は既定値、数値でない値や範囲外の値はINVALID_REQUESTとする。
func parsePage(r *http.Request) (analysis.Page, *model.APIError) {
	page := analysis.Page{Page: analysis.DefaultPage, Limit: analysis.DefaultLimit}
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return page, model.NewInvalidRequestError("page は1以上の整数を指定してください")
		}
		page.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > analysis.MaxLimit {
			return page, model.NewInvalidRequestError(fmt.Sprintf("limit は1以上%d以下の整数を指定してください", analysis.MaxLimit))
		}
		page.Limit = n
	}
	return page, nil
}
