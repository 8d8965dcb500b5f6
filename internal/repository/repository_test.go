package repository

import (
	"context"
	"testing"
	"time"

	"github.com/lewtec/demarcador/internal/domain"
)

type repositories struct {
	images      *ImageRepository
	annotations *AnnotationRepository
	categories  *CategoryRepository
}

func setupTestRepositories(t *testing.T) (repositories, context.Context) {
	t.Helper()
	db := SetupTestDB(t)
	t.Cleanup(func() { CleanupTestDB(t, db) })

	return repositories{
		images:      NewImageRepository(db),
		annotations: NewAnnotationRepository(db),
		categories:  NewCategoryRepository(db),
	}, context.Background()
}

func TestMigrate_Idempotent(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	if err := Migrate(context.Background(), db); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestImageRepository(t *testing.T) {
	repos, ctx := setupTestRepositories(t)

	t.Run("creates image", func(t *testing.T) {
		img, err := repos.images.Create(ctx, domain.Image{ID: "abc", Filename: "b.jpg", Width: 640, Height: 480})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if img.ID != "abc" || img.Width != 640 || img.Height != 480 {
			t.Errorf("Got %+v", img)
		}
		if img.IngestedAt.IsZero() {
			t.Error("IngestedAt should not be zero")
		}
	})

	t.Run("upserts existing image", func(t *testing.T) {
		img, err := repos.images.Create(ctx, domain.Image{ID: "abc", Filename: "renamed.jpg", Width: 640, Height: 480})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if img.Filename != "renamed.jpg" {
			t.Errorf("Filename = %v, want renamed.jpg", img.Filename)
		}
		n, _ := repos.images.Count(ctx)
		if n != 1 {
			t.Errorf("Got %d images, want 1", n)
		}
	})

	t.Run("returns nil for unknown image", func(t *testing.T) {
		img, err := repos.images.GetByID(ctx, "nope")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if img != nil {
			t.Error("Expected nil for non-existent image")
		}
	})

	t.Run("lists by file name", func(t *testing.T) {
		repos.images.Create(ctx, domain.Image{ID: "def", Filename: "a.jpg"})
		images, err := repos.images.FetchImages(ctx, "")
		if err != nil {
			t.Fatalf("FetchImages() error = %v", err)
		}
		if len(images) != 2 || images[0].Filename != "a.jpg" {
			t.Errorf("Got %+v", images)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := repos.images.Delete(ctx, "def"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		n, _ := repos.images.Count(ctx)
		if n != 1 {
			t.Errorf("Got %d images, want 1", n)
		}
	})
}

func TestAnnotationRepository(t *testing.T) {
	repos, ctx := setupTestRepositories(t)
	repos.images.Create(ctx, domain.Image{ID: "img", Filename: "img.jpg", Width: 10, Height: 10})

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := domain.Annotation{
		ID:         "ann-1",
		ImageID:    "img",
		CategoryID: "Defect",
		BBox:       domain.BBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4},
		CreatedBy:  "ana",
		CreatedAt:  created,
		UpdatedBy:  "ana",
		UpdatedAt:  created,
		State:      domain.StateDraft,
	}

	t.Run("persists and reads back", func(t *testing.T) {
		id, err := repos.annotations.Persist(ctx, a)
		if err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
		if id != a.ID {
			t.Errorf("Got id %v, want %v", id, a.ID)
		}
		got, err := repos.annotations.ListPersisted(ctx)
		if err != nil {
			t.Fatalf("ListPersisted() error = %v", err)
		}
		if len(got) != 1 || !got[0].CreatedAt.Equal(a.CreatedAt) || got[0].BBox != a.BBox || got[0].State != a.State {
			t.Errorf("Got %+v, want %+v", got, a)
		}
	})

	t.Run("upsert keeps creation data", func(t *testing.T) {
		b := a
		b.CategoryID = "Good"
		b.CreatedBy = "someone else"
		b.UpdatedBy = "bia"
		b.UpdatedAt = created.Add(time.Minute)
		if _, err := repos.annotations.Persist(ctx, b); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
		got, _ := repos.annotations.ListByImage(ctx, "img")
		if len(got) != 1 {
			t.Fatalf("Got %d annotations, want 1", len(got))
		}
		if got[0].CategoryID != "Good" || got[0].CreatedBy != "ana" || got[0].UpdatedBy != "bia" {
			t.Errorf("Got %+v", got[0])
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := repos.annotations.RemovePersisted(ctx, a.ID); err != nil {
			t.Fatalf("RemovePersisted() error = %v", err)
		}
		got, _ := repos.annotations.ListPersisted(ctx)
		if len(got) != 0 {
			t.Errorf("Got %d annotations, want 0", len(got))
		}
	})

	t.Run("cascade on image delete", func(t *testing.T) {
		repos.annotations.Persist(ctx, a)
		repos.images.Delete(ctx, "img")
		got, _ := repos.annotations.ListPersisted(ctx)
		if len(got) != 0 {
			t.Errorf("Got %d annotations after image delete, want 0", len(got))
		}
	})
}

func TestCategoryRepository(t *testing.T) {
	repos, ctx := setupTestRepositories(t)

	for _, c := range domain.DefaultCategories() {
		if err := repos.categories.SaveCategory(ctx, c); err != nil {
			t.Fatalf("SaveCategory() error = %v", err)
		}
	}
	moved := domain.Category{ID: "Defect", Name: "Defect", Color: "#ef4444", Order: 9}
	if err := repos.categories.SaveCategory(ctx, moved); err != nil {
		t.Fatalf("SaveCategory() error = %v", err)
	}
	if err := repos.categories.DeleteCategory(ctx, "Good"); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}

	got, err := repos.categories.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "Unknown" || got[1] != moved {
		t.Errorf("Got %+v", got)
	}
}

func TestAnnotationRepository_ReadsRawRows(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	MustExec(t, db, `insert into images (id, filename, width, height, ingested_at) values ('img', 'img.jpg', 10, 10, ?)`,
		formatTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	MustExec(t, db, `insert into annotations (id, image_id, category_id, x, y, width, height, state, created_by, created_at, updated_by, updated_at)
		values ('raw', 'img', 'Good', 0.5, 0.5, 0.25, 0.25, 'draft', 'cli', ?, 'cli', ?)`,
		formatTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), formatTime(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))

	got, err := NewAnnotationRepository(db).ListByImage(ctx, "img")
	if err != nil {
		t.Fatalf("ListByImage() error = %v", err)
	}
	if len(got) != 1 || got[0].BBox.Width != 0.25 || got[0].UpdatedAt.Day() != 3 {
		t.Errorf("Got %+v", got)
	}
}

func BenchmarkAnnotationRepository_Persist(b *testing.B) {
	db := SetupTestDB(b)
	defer CleanupTestDB(b, db)

	ctx := context.Background()
	NewImageRepository(db).Create(ctx, domain.Image{ID: "img", Filename: "img.jpg", Width: 10, Height: 10})
	repo := NewAnnotationRepository(db)
	now := time.Now()
	a := domain.Annotation{ID: "ann", ImageID: "img", CategoryID: "Good", BBox: domain.BBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2},
		CreatedAt: now, UpdatedAt: now, State: domain.StateDraft}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := repo.Persist(ctx, a); err != nil {
			b.Fatal(err)
		}
	}
}
