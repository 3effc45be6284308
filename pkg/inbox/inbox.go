// Package inbox imports receipt images dropped into a directory as
// unassigned expenses. Each file is read with OCR, stored as the expense's
// receipt and moved to a processed directory.
package inbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/currency"
	"boringexpenses/pkg/ocr"
	"boringexpenses/pkg/receipts"
	"boringexpenses/pkg/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store interface {
	ImportedSourceFiles(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error)
	SaveExpense(ctx context.Context, e *models.Expense) error
}

type Objects interface {
	Put(ctx context.Context, path string, data []byte) error
	Delete(path string) error
}

// ReadFunc extracts a receipt total from an image file.
type ReadFunc func(path string) (*ocr.Result, error)

type Options struct {
	Dir          string
	ProcessedDir string
	Workers      int
	DryRun       bool
	// SimulateOCR runs OCR during a dry run and logs what would be imported.
	SimulateOCR   bool
	Currency      string
	MinConfidence float64
}

type Stats struct {
	Found    int64
	Imported int64
	Skipped  int64
	Failed   int64
}

type Scanner struct {
	opts    Options
	owner   models.Profile
	store   Store
	objects Objects
	read    ReadFunc
	log     *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}

	found, imported, skipped, failed atomic.Int64
}

func New(opts Options, owner models.Profile, st Store, objects Objects, log *zap.Logger) *Scanner {
	if opts.ProcessedDir == "" {
		opts.ProcessedDir = filepath.Join(opts.Dir, "processed")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = receipts.MinConfidence
	}
	opts.Currency = currency.Normalize(opts.Currency)
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		opts:    opts,
		owner:   owner,
		store:   st,
		objects: objects,
		read:    ocr.ExtractReceipt,
		log:     log,
		now:     time.Now,
		seen:    map[string]struct{}{},
	}
}

func (s *Scanner) Stats() Stats {
	return Stats{
		Found:    s.found.Load(),
		Imported: s.imported.Load(),
		Skipped:  s.skipped.Load(),
		Failed:   s.failed.Load(),
	}
}

// Scan processes every supported file currently in the inbox directory.
func (s *Scanner) Scan(ctx context.Context) (Stats, error) {
	files, err := ListImageFiles(s.opts.Dir)
	if err != nil {
		return s.Stats(), err
	}
	s.found.Add(int64(len(files)))
	s.log.Info("scanning receipt inbox",
		zap.String("dir", s.opts.Dir),
		zap.Int("files", len(files)),
		zap.Int("workers", s.opts.Workers),
		zap.Bool("dry_run", s.opts.DryRun))
	if s.opts.DryRun {
		for _, f := range files {
			s.dryRun(f)
		}
		return s.Stats(), nil
	}
	if err := s.preload(ctx); err != nil {
		return s.Stats(), err
	}
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, f := range files {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	s.runWorkers(ctx, ch)
	return s.Stats(), ctx.Err()
}

func (s *Scanner) preload(ctx context.Context) error {
	names, err := s.store.ImportedSourceFiles(ctx, s.owner.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for n := range names {
		s.seen[n] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// runWorkers drains names with the configured number of workers and
// returns once names is closed and all work is done.
func (s *Scanner) runWorkers(ctx context.Context, names <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range names {
				if ctx.Err() != nil {
					continue
				}
				s.process(ctx, name)
			}
		}()
	}
	wg.Wait()
}

// claim marks name as taken and reports whether the caller should process it.
func (s *Scanner) claim(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[name]; ok {
		return false
	}
	s.seen[name] = struct{}{}
	return true
}

func (s *Scanner) release(name string) {
	s.mu.Lock()
	delete(s.seen, name)
	s.mu.Unlock()
}

func (s *Scanner) dryRun(name string) {
	if !s.opts.SimulateOCR {
		s.log.Info("would import", zap.String("file", name))
		return
	}
	res, err := s.read(filepath.Join(s.opts.Dir, name))
	if err != nil {
		s.log.Info("ocr failed", zap.String("file", name), zap.Error(err))
		return
	}
	s.log.Info("would import",
		zap.String("file", name),
		zap.String("amount", res.Amount.StringFixed(2)),
		zap.String("currency", res.Currency),
		zap.Float64("confidence", res.Confidence))
}

func (s *Scanner) process(ctx context.Context, name string) {
	log := s.log.With(zap.String("file", name))
	if !s.claim(name) {
		s.skipped.Add(1)
		log.Debug("skip already imported")
		return
	}
	path := filepath.Join(s.opts.Dir, name)
	res, err := s.read(path)
	if err != nil || res.Confidence <= s.opts.MinConfidence {
		s.release(name)
		s.skipped.Add(1)
		if err != nil {
			log.Info("ocr found nothing usable", zap.Error(err))
		} else {
			log.Info("ocr confidence too low", zap.Float64("confidence", res.Confidence))
		}
		return
	}
	if err := s.importFile(ctx, path, name, res); err != nil {
		s.release(name)
		s.failed.Add(1)
		log.Warn("import failed", zap.Error(err))
		return
	}
	s.imported.Add(1)
	if err := moveFile(path, filepath.Join(s.opts.ProcessedDir, name)); err != nil {
		log.Warn("move to processed failed", zap.Error(err))
	}
}

func (s *Scanner) importFile(ctx context.Context, path, name string, res *ocr.Result) error {
	in := models.ExpenseInput{
		Description: "Receipt " + name,
		Amount:      res.Amount,
		Currency:    s.opts.Currency,
		Date:        models.NewDate(s.now()),
	}
	if currency.Valid(res.Currency) {
		in.Currency = res.Currency
	}
	if !res.Date.IsZero() {
		in.Date = models.NewDate(res.Date)
	}
	if err := in.Validate(); err != nil {
		return err
	}

	data, err := readForUpload(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	_, ext, err := storage.Sniff(data, false)
	if err != nil {
		return err
	}
	object := storage.ReceiptPath(s.owner.ID, ext)
	if err := s.objects.Put(ctx, object, data); err != nil {
		return fmt.Errorf("store image: %w", err)
	}

	e := &models.Expense{UserID: s.owner.ID, ReceiptPath: &object, SourceFile: &name}
	in.Apply(e)
	if err := s.store.SaveExpense(ctx, e); err != nil {
		_ = s.objects.Delete(object)
		return err
	}
	s.log.Info("imported receipt",
		zap.String("file", name),
		zap.String("expense_id", e.ID.String()),
		zap.String("amount", e.Amount.StringFixed(2)),
		zap.String("currency", e.Currency))
	return nil
}

// ListImageFiles returns the supported image names in dir, sorted.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func isSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".tif", ".tiff":
		return true
	}
	return false
}

// moveFile renames src to dst, falling back to copy and remove across devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
