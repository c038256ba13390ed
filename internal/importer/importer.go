// Package importer matches completed download files back to library targets,
// re-validates quality rules against the actual files, and requests
// placement from the file organizer.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/profile"
	"github.com/fetcharr/fetcharr/internal/release"
)

var ErrImportFailed = errors.New("no file could be imported")

// Skip reason codes for files needing manual intervention.
const (
	SkipUnparseable  = "unparseable"
	SkipNoTarget     = "no_matching_target"
	SkipNotAnUpgrade = "not_an_upgrade"
	SkipTooSmall     = "file_too_small"
	SkipPlacement    = "placement_failed"
)

// Organizer is the external file placement collaborator.
type Organizer interface {
	Place(ctx context.Context, sourcePath string, target *library.Target, tier string) (finalPath string, err error)
}

// ImportedFile records one successful placement.
type ImportedFile struct {
	SourcePath string           `json:"sourcePath"`
	FinalPath  string           `json:"finalPath"`
	TargetID   library.TargetID `json:"targetId"`
	Tier       string           `json:"tier"`
}

// SkippedFile records a file requiring manual import rather than being
// silently discarded.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the outcome of importing one completed download.
type Result struct {
	Imported []ImportedFile `json:"imported"`
	Manual   []SkippedFile  `json:"manual,omitempty"`
}

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".ts": true, ".wmv": true, ".mov": true, ".flac": true, ".mp3": true,
}

// Service runs the import pipeline.
type Service struct {
	store     library.Store
	organizer Organizer
	minBytes  int64
	logger    zerolog.Logger
}

func NewService(store library.Store, organizer Organizer, minBytes int64, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		organizer: organizer,
		minBytes:  minBytes,
		logger:    logger.With().Str("component", "importer").Logger(),
	}
}

// Import processes the files of one completed download. kindHint narrows
// parsing; targetHint is the target the download was grabbed for and is
// preferred when file numbering matches. Returns ErrImportFailed when every
// contained file fails, so the whole download can be failed and blocklisted.
func (s *Service) Import(ctx context.Context, path string, kindHint release.Kind, targetHint *library.Target) (Result, error) {
	files, err := listMediaFiles(path)
	if err != nil {
		return Result{}, fmt.Errorf("listing completed files: %w", err)
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("%w: no media files under %s", ErrImportFailed, path)
	}

	var result Result
	for _, file := range files {
		imported, skip := s.importFile(ctx, file, kindHint, targetHint)
		if skip != nil {
			s.logger.Warn().
				Str("file", skip.Path).
				Str("reason", skip.Reason).
				Msg("manual import required")
			result.Manual = append(result.Manual, *skip)
			continue
		}
		result.Imported = append(result.Imported, *imported)
	}

	if len(result.Imported) == 0 {
		return result, fmt.Errorf("%w: %d files need manual import", ErrImportFailed, len(result.Manual))
	}
	return result, nil
}

type mediaFile struct {
	path string
	size int64
}

func (s *Service) importFile(ctx context.Context, file mediaFile, kindHint release.Kind, targetHint *library.Target) (*ImportedFile, *SkippedFile) {
	if s.minBytes > 0 && file.size < s.minBytes {
		return nil, &SkippedFile{Path: file.path, Reason: SkipTooSmall}
	}

	name := strings.TrimSuffix(filepath.Base(file.path), filepath.Ext(file.path))
	parsed := release.Parse(name, kindHint)
	if parsed == nil {
		// Sample and extras often carry no parseable numbering.
		return nil, &SkippedFile{Path: file.path, Reason: SkipUnparseable}
	}

	target, err := s.matchTarget(ctx, parsed, targetHint)
	if err != nil || target == nil {
		return nil, &SkippedFile{Path: file.path, Reason: SkipNoTarget}
	}

	// Re-validate upgrade rules against the actual file's claimed quality,
	// which may differ from the grabbed release title.
	tier := profile.TierForQuality(parsed.Quality)
	prof, err := s.store.QualityProfile(ctx, target.QualityProfileID)
	if err != nil {
		return nil, &SkippedFile{Path: file.path, Reason: SkipNoTarget}
	}
	if target.HasFile() {
		if !prof.UpgradeAllowed || prof.CutoffMet(target.CurrentFileTier) ||
			!prof.IsUpgrade(tier.Name, target.CurrentFileTier) {
			return nil, &SkippedFile{Path: file.path, Reason: SkipNotAnUpgrade}
		}
	}

	finalPath, err := s.organizer.Place(ctx, file.path, target, tier.Name)
	if err != nil {
		return nil, &SkippedFile{Path: file.path, Reason: SkipPlacement}
	}
	if err := s.store.SetCurrentFile(ctx, target.ID, tier.Name, finalPath); err != nil {
		s.logger.Error().Err(err).Str("target", string(target.ID)).Msg("failed to record imported file")
	}

	s.logger.Info().
		Str("file", file.path).
		Str("target", string(target.ID)).
		Str("tier", tier.Name).
		Str("finalPath", finalPath).
		Msg("file imported")
	return &ImportedFile{
		SourcePath: file.path,
		FinalPath:  finalPath,
		TargetID:   target.ID,
		Tier:       tier.Name,
	}, nil
}

func (s *Service) matchTarget(ctx context.Context, parsed *release.ParsedRelease, hint *library.Target) (*library.Target, error) {
	if hint != nil && hint.Matches(parsed) {
		// Re-read the hint so upgrade checks see current file state.
		return s.store.GetTarget(ctx, hint.ID)
	}
	return s.store.MatchTarget(ctx, parsed)
}

// listMediaFiles accepts either a single file or a directory tree.
func listMediaFiles(path string) ([]mediaFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil, nil
		}
		return []mediaFile{{path: path, size: info.Size()}}, nil
	}

	var files []mediaFile
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, mediaFile{path: p, size: fi.Size()})
		return nil
	})
	return files, err
}
