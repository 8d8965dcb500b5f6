package annotation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/lewtec/demarcador/internal/domain"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func DecodeImage(filepath string) (image.Image, error) {
	return imaging.Open(filepath)
}

// DecodeImageConfig reads only the header of an image for its pixel size
func DecodeImageConfig(filepath string) (int, int, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// IngestImage re-encodes img as PNG into outputDir, named after the hash of
// the encoded bytes
func IngestImage(img image.Image, outputDir string) error {
	tempFile := path.Join(outputDir, fmt.Sprintf("%s.png", uuid.New()))
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}
	hasher := sha256.New()
	w := io.MultiWriter(f, hasher)
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}
	err = os.Rename(tempFile, path.Join(outputDir, fmt.Sprintf("%x.png", hasher.Sum(nil))))
	if err != nil {
		os.Remove(tempFile)
	}
	return err
}

// IngestTree walks inputs and ingests every decodable image into output
// using jobs concurrent encoders. Files that are not images are skipped.
func IngestTree(ctx context.Context, inputs []string, output string, jobs int) (int, error) {
	if jobs < 1 {
		jobs = 1
	}
	queue := make(chan image.Image, 10)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ingested int
	)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for img := range queue {
				if err := IngestImage(img, output); err != nil {
					log.Printf("ingest: %s", err)
					continue
				}
				mu.Lock()
				ingested++
				mu.Unlock()
			}
		}()
	}

	var walkErr error
	for _, input := range inputs {
		walkErr = filepath.WalkDir(input, func(p string, info fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			img, err := DecodeImage(p)
			if err != nil {
				return nil
			}
			log.Printf("ingest: found image '%s'", p)
			queue <- img
			return nil
		})
		if walkErr != nil {
			break
		}
	}
	close(queue)
	wg.Wait()
	return ingested, walkErr
}

// ScanImages reads a flat folder of images. Hidden files and the project's
// own files are skipped; anything else that is not an image is an error.
func ScanImages(dir string) ([]domain.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var images []domain.Image
	for _, entry := range entries {
		name := entry.Name()
		if isProjectFile(name) {
			continue
		}
		p := filepath.Join(dir, name)
		if entry.IsDir() {
			return nil, fmt.Errorf("while checking if item '%s' is a file: datasets must be organized in a flat folder structure. Hint: use the 'ingest' subcommand.", p)
		}
		width, height, err := DecodeImageConfig(p)
		if err != nil {
			return nil, fmt.Errorf("while checking if item '%s' is an image: %w", p, err)
		}
		hash, err := HashFile(p)
		if err != nil {
			return nil, fmt.Errorf("while hashing item '%s': %w", p, err)
		}
		images = append(images, domain.Image{
			ID:         hash,
			Filename:   name,
			URL:        "/asset/" + hash,
			Width:      width,
			Height:     height,
			IngestedAt: time.Now().UTC(),
		})
	}
	return images, nil
}

func isProjectFile(name string) bool {
	if name == "" || name[0] == '.' {
		return true
	}
	switch filepath.Ext(name) {
	case ".yaml", ".yml", ".db", ".db-journal", ".db-wal", ".db-shm", ".lock", ".env", ".json", ".txt":
		return true
	}
	return name == "exports"
}
