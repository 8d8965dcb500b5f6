package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/lewtec/demarcador/annotation"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	configFileName   = "config.yaml"
	databaseFileName = "annotations.db"
	exportsDirName   = "exports"
)

// project is a folder holding images, config.yaml and annotations.db
type project struct {
	Dir    string
	Config *annotation.Config
	DB     *sql.DB
	App    *annotation.AnnotatorApp
}

func (p *project) configFile() string   { return filepath.Join(p.Dir, configFileName) }
func (p *project) databaseFile() string { return filepath.Join(p.Dir, databaseFileName) }

// initProject creates the config and database of dir when missing
func initProject(ctx context.Context, dir string) error {
	stat, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	configFile := filepath.Join(dir, configFileName)
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Printf("Creating default config: %s", configFile)
		if err := annotation.WriteConfig(configFile, annotation.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to create config: %w", err)
		}
	} else {
		log.Printf("Config file already exists: %s", configFile)
	}
	databaseFile := filepath.Join(dir, databaseFileName)
	if _, err := os.Stat(databaseFile); os.IsNotExist(err) {
		log.Printf("Creating empty database: %s", databaseFile)
	}
	db, err := annotation.GetDatabase(ctx, databaseFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	return db.Close()
}

// openProject loads the project in dir, registering its images
func openProject(ctx context.Context, dir string) (*project, error) {
	if err := initProject(ctx, dir); err != nil {
		return nil, err
	}
	p := &project{Dir: dir}
	cfg, err := annotation.LoadConfig(p.configFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if user := os.Getenv("DEMARCADOR_USER"); user != "" {
		cfg.User = user
	}
	if addr := os.Getenv("DEMARCADOR_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return nil, err
	}
	annotation.SetLanguage(cfg.I18n.Language)
	p.Config = cfg

	db, err := annotation.GetDatabase(ctx, p.databaseFile())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	p.DB = db
	p.App = &annotation.AnnotatorApp{
		ImagesDir: dir,
		Database:  db,
		Config:    cfg,
		Exports:   annotation.NewLocalStorage(osfs.New(filepath.Join(dir, exportsDirName)), exportsDirName),
	}
	if err := p.App.PrepareDatabase(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare database: %w", err)
	}
	return p, nil
}

// Close persists pending changes and closes the database
func (p *project) Close(ctx context.Context) error {
	err := p.App.Close(ctx)
	if cerr := p.DB.Close(); err == nil {
		err = cerr
	}
	return err
}

func projectDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("project")
	if dir == "" {
		return "."
	}
	return dir
}
