package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const lockFileName = ".demarcador.lock"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "demarcador [folder]",
	Short: "Draw bounding boxes over a folder of images",
	Long: strings.TrimSpace(`
Draw labeled bounding boxes over a folder of images and exchange them as
native JSON, YOLO or COCO. Given a folder, the project files are created in
it and the annotation server is started.
    `),
	Args: cobra.MaximumNArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file if present (ignore errors)
		_ = godotenv.Load()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := projectDir(cmd)
		if len(args) == 1 {
			dir = args[0]
		}
		return serve(cmd, dir)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the annotation server for a project folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd, projectDir(cmd))
	},
}

func serve(cmd *cobra.Command, dir string) error {
	ctx := cmd.Context()
	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another demarcador server is already running on this folder")
	}
	defer lock.Unlock()

	p, err := openProject(ctx, dir)
	if err != nil {
		return err
	}
	defer p.Close(context.Background())

	addr := p.Config.Server.Addr
	if cmd.Flags().Changed("addr") {
		addr, _ = cmd.Flags().GetString("addr")
	}

	log.Printf("Configuration: %s", p.configFile())
	log.Printf("Database: %s", p.databaseFile())
	log.Printf("Images: %s", dir)
	log.Printf("Starting server on: %s", addr)

	srv := &http.Server{Addr: addr, Handler: p.App.GetHTTPHandler()}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	log.Printf("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func init() {
	rootCmd.PersistentFlags().StringP("project", "p", ".", "Project folder holding images, config.yaml and annotations.db")
	rootCmd.Flags().StringP("addr", "a", ":8080", "Address to bind the webserver")
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to bind the webserver")
	rootCmd.AddCommand(serveCmd)
}
