package megacloud

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchDecryptKey(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "mega entry preferred",
			body: `{"megacloud":"secondChoice","mega":"firstChoice","other":"ignored"}`,
			want: "firstChoice",
		},
		{
			name: "megacloud fallback",
			body: `{"megacloud":"secondChoice","zeta":"ignored"}`,
			want: "secondChoice",
		},
		{
			name: "first entry by sorted name as last resort",
			body: `{"zeta":"lastAlphabetically","alpha":"firstAlphabetically"}`,
			want: "firstAlphabetically",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			key, err := FetchDecryptKey(context.Background(), srv.Client(), srv.URL)
			if err != nil {
				t.Fatalf("FetchDecryptKey() error: %v", err)
			}
			if key != tt.want {
				t.Errorf("key = %q, want %q", key, tt.want)
			}
		})
	}
}

func TestFetchDecryptKeyEmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	if _, err := FetchDecryptKey(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Error("expected error for empty key document")
	}
}
