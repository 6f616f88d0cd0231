package api

import (
	"danmaku-overlay/internal/utils"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
)

func ResponseJSON(w http.ResponseWriter, status int, result interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if result == nil {
		result = map[string]interface{}{"status": status}
	}
	err := json.NewEncoder(w).Encode(result)
	if err != nil {
		utils.ErrorLog("response", "encode json error", "error", err)
	}
}

func ResponseError(w http.ResponseWriter, status int, err error) {
	ResponseJSON(w, status, map[string]string{"message": err.Error()})
}

// DecodeJSONBody 解码失败时已经写入错误响应，调用方直接返回即可
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, target interface{}) error {
	defer utils.SafeClose(r.Body)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		err := fmt.Errorf("content type must be application/json")
		ResponseError(w, http.StatusUnsupportedMediaType, err)
		return err
	}

	err := json.NewDecoder(r.Body).Decode(target)
	if err != nil {
		ResponseError(w, http.StatusBadRequest, fmt.Errorf("invalid request payload: %w", err))
		return fmt.Errorf("json decode error: %w", err)
	}

	return nil
}
