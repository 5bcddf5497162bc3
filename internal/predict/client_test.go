package predict

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// sumServer predicts the sum of each row.
func sumServer(t *testing.T, format Format, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var rows [][]float64
		if format == FormatSeldon {
			var body struct {
				Data struct {
					NDArray [][]float64 `json:"ndarray"`
				} `json:"data"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			rows = body.Data.NDArray
		} else {
			var body struct {
				Instances [][]float64 `json:"instances"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			rows = body.Instances
		}
		preds := make([]float64, len(rows))
		for i, row := range rows {
			for _, v := range row {
				preds[i] += v
			}
		}
		if format == FormatSeldon {
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"ndarray": preds}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": preds})
	}))
}

func testRows(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{float64(i), 1}
	}
	return rows
}

func TestPredictKeepsRowOrder(t *testing.T) {
	for _, format := range []Format{FormatMLflow, FormatSeldon} {
		t.Run(string(format), func(t *testing.T) {
			var requests atomic.Int32
			srv := sumServer(t, format, &requests)
			defer srv.Close()

			c := New(format, WithBatchSize(7), WithConcurrency(3))
			preds, err := c.Predict(context.Background(), srv.URL, testRows(50))
			require.NoError(t, err)
			require.Len(t, preds, 50)
			for i, p := range preds {
				assert.InDelta(t, float64(i)+1, p.(float64), 1e-9)
			}
			assert.Equal(t, int32(8), requests.Load())
		})
	}
}

func TestPredictServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(FormatMLflow).Predict(context.Background(), srv.URL, testRows(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPredictCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[1]`))
	}))
	defer srv.Close()

	_, err := New(FormatMLflow).Predict(context.Background(), srv.URL, testRows(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 predictions for 2 rows")
}

func TestPredictWithoutURL(t *testing.T) {
	_, err := New(FormatMLflow).Predict(context.Background(), "", testRows(1))
	assert.True(t, errors.IsNoRunningServer(err))
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatMLflow, FormatFor(""))
	assert.Equal(t, FormatMLflow, FormatFor("mlflow"))
	assert.Equal(t, FormatSeldon, FormatFor("SKLEARN_SERVER"))
}

func TestDecode(t *testing.T) {
	preds, err := decode([]byte(`{"data":{"names":["t:0"],"ndarray":[0,1]}}`))
	require.NoError(t, err)
	assert.Len(t, preds, 2)

	_, err = decode([]byte(`{"unexpected":true}`))
	assert.Error(t, err)
}
