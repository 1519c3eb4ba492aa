package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSource_Prediction(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"message field", http.StatusOK, `{"message": "📈 Uptrend (Buy)"}`, "📈 Uptrend (Buy)", false},
		{"text field wins", http.StatusOK, `{"text": "📉 Downtrend (Sell)", "message": "ignored"}`, "📉 Downtrend (Sell)", false},
		{"not found", http.StatusNotFound, `{"message": "❌ Stock data file not found!"}`, "", true},
		{"server error", http.StatusInternalServerError, `{"error": "boom"}`, "", true},
		{"garbage", http.StatusOK, `not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotStrategy string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/predict", r.URL.Path)
				gotStrategy = r.URL.Query().Get("strategy")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			src := NewHTTPSource(srv.URL+"/", time.Second)
			got, err := src.Prediction(context.Background(), "momentum-trading")
			assert.Equal(t, "momentum-trading", gotStrategy)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPSource_RespectsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	src := NewHTTPSource(srv.URL, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := src.Prediction(ctx, "momentum-trading")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
