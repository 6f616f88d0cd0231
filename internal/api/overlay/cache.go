package overlay

import (
	"bytes"
	"danmaku-overlay/internal/parser"
	"danmaku-overlay/internal/utils"
	"net/http"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-chi/chi/v5"
)

const exportCacheC = "export_cache"

var exportCache *ristretto.Cache[string, []byte]

// InitExportCache 导出的弹幕在来源被删除前不会变化，缓存一小时
func InitExportCache() error {
	if exportCache != nil {
		return nil
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     1 << 27, // 128M
		BufferItems: 64,
	})
	if err != nil {
		return err
	}
	exportCache = c
	return nil
}

func exportKey(id, format string) string {
	if format == "" {
		format = parser.DandanFormat
	}
	return id + "\x00" + format
}

func exportContentType(format string) string {
	if format == parser.XMLFormat {
		return "application/xml; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

func invalidateExport(id int) {
	if exportCache == nil {
		return
	}
	for _, f := range parser.Formats() {
		exportCache.Del(exportKey(strconv.Itoa(id), f))
	}
	exportCache.Wait()
}

func CacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exportCache == nil {
			next.ServeHTTP(w, r)
			return
		}
		format := r.URL.Query().Get("format")
		cacheKey := exportKey(chi.URLParam(r, "id"), format)
		if cached, found := exportCache.Get(cacheKey); found {
			w.Header().Set("Content-Type", exportContentType(format))
			_, _ = w.Write(cached)
			utils.DebugLog(exportCacheC, "cache loaded", "cacheKey", cacheKey)
			return
		}

		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		if rr.statusCode == http.StatusOK && rr.body != nil {
			data := rr.body.Bytes()
			if !exportCache.SetWithTTL(cacheKey, data, int64(len(data)), time.Hour) {
				utils.DebugLog(exportCacheC, "cache set failed", "cacheKey", cacheKey)
			}
		}
	})
}

type responseRecorder struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.body == nil {
		r.body = new(bytes.Buffer)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
