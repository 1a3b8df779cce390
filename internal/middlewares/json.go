package middlewares

import (
	"encoding/json"
	"net/http"
)

// EncodeJSONResponse кодирует данные в формат JSON и отправляет их в ответе.
func EncodeJSONResponse[Model any](w http.ResponseWriter, data Model) {
	w.Header().Set("Content-Type", "application/json")

	resp, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Не удалось закодировать ответ", http.StatusInternalServerError)
		return
	}

	if _, err := w.Write(resp); err != nil {
		http.Error(w, "Не удалось записать ответ", http.StatusInternalServerError)
	}
}
