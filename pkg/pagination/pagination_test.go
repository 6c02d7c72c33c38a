package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/child-records"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=0", DefaultLimit, 0},
		{"?limit=-5&offset=-1", DefaultLimit, 0},
		{"?limit=100000", MaxLimit, 0},
		{"?limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := paramsFor(tt.query)
			if p.Limit != tt.limit || p.Offset != tt.offset {
				t.Errorf("FromContext(%q) = %+v, want limit=%d offset=%d", tt.query, p, tt.limit, tt.offset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2}, 5, 2, 2)
	if !r.HasMore {
		t.Error("expected HasMore with 5 total at offset 2 limit 2")
	}
	r = NewResponse([]int{5}, 5, 2, 4)
	if r.HasMore {
		t.Error("expected no more on the last page")
	}
	if got := (Params{Limit: 2, Offset: 4}).NextOffset(); got != 6 {
		t.Errorf("NextOffset() = %d, want 6", got)
	}
}
