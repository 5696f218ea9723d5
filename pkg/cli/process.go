package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/config"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/geo"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/lifecycle"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/pipeline"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/pkg/models"
)

// processResult is the one-shot command's per-file report.
type processResult struct {
	File     string          `json:"file"`
	Status   string          `json:"status"`
	MimeType string          `json:"mimeType,omitempty"`
	GPS      *geo.Coordinate `json:"gps,omitempty"`
	DataURI  string          `json:"dataUri,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newProcessCommand(opts *rootOptions) *cobra.Command {
	var (
		concurrency int
		full        bool
	)

	cmd := &cobra.Command{
		Use:   "process <photo> [photo...]",
		Short: "Run local photos through the normalization pipeline",
		Long: `Processes local image files exactly like an upload batch: GPS metadata
is extracted, HEIC files are converted to JPEG, and a per-file report is
printed as JSON. One file's failure does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Pipeline.Concurrency = concurrency
			}
			return runProcess(cmd.Context(), cfg, args, full)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Number of concurrently processed photos")
	cmd.Flags().BoolVar(&full, "full", false, "Include the data URI payload in the output")

	return cmd
}

func runProcess(ctx context.Context, cfg *config.Config, paths []string, full bool) error {
	uploads := make([]models.RawUpload, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("cannot stat %s: %w", p, err)
		}
		p := p
		uploads = append(uploads, models.RawUpload{
			Name: filepath.Base(p),
			MIME: mime.TypeByExtension(filepath.Ext(p)),
			Size: info.Size(),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}

	store := lifecycle.NewStore()
	defer store.Close()

	var (
		mu     sync.Mutex
		photos = map[string]models.NormalizedPhoto{}
	)
	orch := pipeline.New(cfg.Pipeline, store, func(photo models.NormalizedPhoto) {
		mu.Lock()
		photos[photo.ID] = photo
		mu.Unlock()
	}, nil)

	orch.Enqueue(ctx, uploads)
	orch.Wait()
	orch.Close()
	orch.Summary()

	results := make([]processResult, 0, len(uploads))
	for _, rec := range store.List() {
		res := processResult{
			File:   rec.FileName,
			Status: string(rec.Status),
			Error:  rec.ErrorDetail,
		}
		if rec.Status == lifecycle.StatusSuccess {
			if photo, ok := photos[rec.ID]; ok {
				res.MimeType = photo.MimeType
				res.GPS = photo.Geo
				if full {
					res.DataURI = photo.DataURI
				}
			}
		}
		results = append(results, res)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
