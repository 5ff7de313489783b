package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmeshcher/dailyledger/internal/model"
)

// recordsEndpoint повторяет форму ответов /api/records: список записей или 204
// на GET, {"success":true} или 400 на POST.
func recordsEndpoint(records []model.DailyRecord) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if len(records) == 0 {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(records)
			return
		}

		var form struct {
			OutletName  string `json:"outletName"`
			CashPayment string `json:"cashPayment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil || form.OutletName == "" {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	})
}

func dailyRecords() []model.DailyRecord {
	day := model.NewDate(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	return []model.DailyRecord{
		{ID: 2, Owner: "u1", DataType: model.DailyNECCRate, Date: day, Payload: json.RawMessage(`{"type":"necc-rate","neccRate":5.25}`)},
		{ID: 1, Owner: "u1", DataType: "daily-damages", Date: day, Payload: json.RawMessage(`{"type":"daily-damages","damages":{"Godown":3}}`)},
	}
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		contentType     string
		bodyContains    string
	}

	tests := []struct {
		name           string
		method         string
		path           string
		records        []model.DailyRecord
		requestBody    string
		compressBody   bool
		acceptEncoding string
		want           want
	}{
		{
			name:           "records list, client accepts gzip",
			method:         http.MethodGet,
			path:           "/api/records/daily",
			records:        dailyRecords(),
			acceptEncoding: "gzip, deflate",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				contentType:     "application/json",
				bodyContains:    `"data_type":"necc-rate"`,
			},
		},
		{
			name:    "records list, client without gzip",
			method:  http.MethodGet,
			path:    "/api/records/daily",
			records: dailyRecords(),
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "",
				contentType:     "application/json",
				bodyContains:    `"neccRate":5.25`,
			},
		},
		{
			name:           "no records",
			method:         http.MethodGet,
			path:           "/api/records/outlet",
			acceptEncoding: "gzip",
			want: want{
				statusCode:      http.StatusNoContent,
				contentEncoding: "",
			},
		},
		{
			name:           "compressed save body",
			method:         http.MethodPost,
			path:           "/api/records/outlet-bandepalya",
			requestBody:    `{"outletName":"Bandepalya","cashPayment":"2500"}`,
			compressBody:   true,
			acceptEncoding: "gzip",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				contentType:     "application/json",
				bodyContains:    `{"success":true}`,
			},
		},
		{
			name:           "rejected save body stays plain",
			method:         http.MethodPost,
			path:           "/api/records/outlet-bandepalya",
			requestBody:    `{"outletName":""}`,
			compressBody:   true,
			acceptEncoding: "gzip",
			want: want{
				statusCode:      http.StatusBadRequest,
				contentEncoding: "",
				contentType:     "text/plain; charset=utf-8",
				bodyContains:    "Bad Request",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestBody io.Reader = strings.NewReader(tt.requestBody)
			if tt.compressBody {
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				if _, err := gz.Write([]byte(tt.requestBody)); err != nil {
					t.Fatalf("write gzip: %v", err)
				}
				if err := gz.Close(); err != nil {
					t.Fatalf("close gzip: %v", err)
				}
				requestBody = &buf
			}

			req := httptest.NewRequest(tt.method, tt.path, requestBody)
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(recordsEndpoint(tt.records)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.want.statusCode {
				t.Fatalf("status: got %d want %d", res.StatusCode, tt.want.statusCode)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.want.contentEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.want.contentEncoding)
			}

			var body []byte
			var err error
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, gzErr := gzip.NewReader(res.Body)
				if gzErr != nil {
					t.Fatalf("new gzip reader: %v", gzErr)
				}
				defer gr.Close()
				body, err = io.ReadAll(gr)
			} else {
				body, err = io.ReadAll(res.Body)
			}
			if err != nil {
				t.Fatalf("read body: %v", err)
			}

			if tt.want.statusCode == http.StatusNoContent {
				if len(body) != 0 {
					t.Fatalf("body: got %q want empty", body)
				}
				return
			}

			if ct := res.Header.Get("Content-Type"); ct != tt.want.contentType {
				t.Fatalf("content-type: got %q want %q", ct, tt.want.contentType)
			}
			if !strings.Contains(string(body), tt.want.bodyContains) {
				t.Fatalf("body %q does not contain %q", body, tt.want.bodyContains)
			}
		})
	}
}

func TestGzipMiddleware_RecordsListDecodes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/records/daily", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	GzipMiddleware(recordsEndpoint(dailyRecords())).ServeHTTP(w, req)

	gr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	defer gr.Close()

	var got []model.DailyRecord
	if err := json.NewDecoder(gr).Decode(&got); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records: got %d want 2", len(got))
	}
	if got[0].DataType != model.DailyNECCRate || got[0].Date.String() != "2024-05-01" {
		t.Fatalf("first record: got %+v", got[0])
	}
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/records/daily-necc", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()

	GzipMiddleware(recordsEndpoint(nil)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", w.Code, http.StatusBadRequest)
	}
}
