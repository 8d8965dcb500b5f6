package annotation

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v6/memfs"
)

func TestLocalStorage(t *testing.T) {
	storage := NewLocalStorage(memfs.New(), "/exports/")
	ctx := context.Background()

	p, err := storage.UploadFile(ctx, "../../etc/instances.json", strings.NewReader(`{"images": []}`))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(p, "..") || !strings.HasSuffix(p, "/instances.json") {
		t.Errorf("Got path %s", p)
	}
	url, err := storage.DownloadURL(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if url != "/exports/"+p {
		t.Errorf("Got %s", url)
	}

	rec := httptest.NewRecorder()
	storage.ServeHTTP(rec, httptest.NewRequest("GET", url, nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if string(body) != `{"images": []}` {
		t.Errorf("Got %q", body)
	}

	rec = httptest.NewRecorder()
	storage.ServeHTTP(rec, httptest.NewRequest("GET", "/exports/missing.json", nil))
	if rec.Code != 404 {
		t.Errorf("Got status %d, want 404", rec.Code)
	}

	if _, err := storage.DownloadURL(ctx, "nope"); err == nil {
		t.Error("Got a URL for a file that was never uploaded")
	}
}
