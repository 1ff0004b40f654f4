package fileadapter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oarkflow/log"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/utils/fileutil"
)

// Adapter stores extracted records in a JSON array file.
type Adapter struct {
	Filename string
	dedup    bool
	appender *fileutil.JSONAppender[contracts.Record]
	logger   *log.Logger
}

// New creates a loader writing to fileName. Only .json files are accepted.
func New(fileName string, dedup bool) *Adapter {
	return &Adapter{Filename: fileName, dedup: dedup, logger: &log.DefaultLogger}
}

func (fl *Adapter) Setup(_ context.Context) error {
	if ext := strings.ToLower(filepath.Ext(fl.Filename)); ext != ".json" {
		return fmt.Errorf("file loader: unsupported extension %q", ext)
	}
	var opts []fileutil.Option[contracts.Record]
	if fl.dedup {
		opts = append(opts, fileutil.WithDedup[contracts.Record]())
	}
	appender, err := fileutil.NewJSONAppender[contracts.Record](fl.Filename, opts...)
	if err != nil {
		return fmt.Errorf("file loader: %w", err)
	}
	fl.appender = appender
	return nil
}

func (fl *Adapter) StoreBatch(_ context.Context, batch []contracts.Record) error {
	if fl.appender == nil {
		return fmt.Errorf("file loader: not set up")
	}
	if err := fl.appender.AppendBatch(batch); err != nil {
		return err
	}
	fl.logger.Info().Str("file", fl.Filename).Int("records", len(batch)).Msg("records stored")
	return nil
}

func (fl *Adapter) StoreSingle(ctx context.Context, rec contracts.Record) error {
	return fl.StoreBatch(ctx, []contracts.Record{rec})
}

func (fl *Adapter) Close() error {
	if fl.appender == nil {
		return nil
	}
	return fl.appender.Close()
}
