package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/logging"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// DefaultSeedPattern selects seed documents below the seed directory
const DefaultSeedPattern = "**/*.{yaml,yml}"

// SeedDocument is one YAML seed file: a provider and its services
type SeedDocument struct {
	Provider SeedProvider  `yaml:"provider"`
	Services []SeedService `yaml:"services"`
}

// SeedProvider describes the provider of a seed document
type SeedProvider struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SeedService describes one seeded service
type SeedService struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	CategoryURI string   `yaml:"category_uri"`
	InputURIs   []string `yaml:"input_uris"`
	OutputURIs  []string `yaml:"output_uris"`
}

// SeedResult summarizes a seeding run
type SeedResult struct {
	Files     int
	Failed    int
	Providers int
	Services  int
}

// Seeder loads providers and services from YAML files
type Seeder struct {
	manager *Manager
	dir     string
	pattern string
	logger  *zap.Logger
}

// NewSeeder creates a seeder over dir. An empty pattern uses DefaultSeedPattern.
func NewSeeder(manager *Manager, dir, pattern string, logger *zap.Logger) *Seeder {
	if pattern == "" {
		pattern = DefaultSeedPattern
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		manager: manager,
		dir:     dir,
		pattern: pattern,
		logger:  logger,
	}
}

// Seed loads every matching file. A bad file is logged and skipped; only a
// bad pattern or an unreadable directory fails the run. Records are owned by
// SystemOwner and existing keys are updated in place.
func (s *Seeder) Seed(ctx context.Context) (SeedResult, error) {
	const op = "registry.Seed"
	var result SeedResult

	if !doublestar.ValidatePattern(s.pattern) {
		return result, fault.New(fault.Configuration, op, "invalid seed pattern %q", s.pattern)
	}
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		s.logger.Warn("Seed directory not found", zap.String("dir", s.dir))
		return result, nil
	}

	files, err := s.find(ctx)
	if err != nil {
		return result, fault.Wrap(fault.Configuration, op, err, "scanning %s", s.dir)
	}

	s.logger.Info("Seeding registry", zap.String("dir", s.dir), zap.Int("files", len(files)))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, fault.Wrap(fault.Communication, op, err, "seeding aborted")
		}

		result.Files++
		services, err := s.loadFile(path)
		if err != nil {
			result.Failed++
			s.logger.Warn("Failed to load seed file", zap.String("file", path), logging.Fault(err))
			continue
		}
		result.Providers++
		result.Services += services
		s.logger.Debug("Loaded seed file", zap.String("file", path), zap.Int("services", services))
	}

	s.logger.Info("Seeding complete",
		zap.Int("providers", result.Providers),
		zap.Int("services", result.Services),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// find returns the matching files in lexical order
func (s *Seeder) find(ctx context.Context) ([]string, error) {
	var (
		mu    sync.Mutex
		files []string
	)
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, s.dir, func(path string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(s.pattern, filepath.ToSlash(rel)); ok {
			mu.Lock()
			files = append(files, path)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func (s *Seeder) loadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	data, cs, err := toUTF8(data)
	if err != nil {
		return 0, fault.Wrap(fault.MalformedInput, "registry.SeedLoad", err, "decoding %s", path)
	}
	if cs != "UTF-8" {
		s.logger.Info("Transcoded seed file", zap.String("file", path), zap.String("charset", cs))
	}
	return s.Load(data)
}

// Load applies one seed document and returns how many services it saved
func (s *Seeder) Load(data []byte) (int, error) {
	const op = "registry.SeedLoad"

	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fault.Wrap(fault.MalformedInput, op, err, "parsing seed document")
	}
	if doc.Provider.Name == "" {
		return 0, fault.New(fault.MalformedInput, op, "seed document has no provider")
	}

	system := types.Identity{UserID: SystemOwner, Username: SystemOwner}
	provider, err := s.manager.saveProvider(op, system, types.ProviderRequest{
		Key:         doc.Provider.Key,
		Name:        doc.Provider.Name,
		Description: doc.Provider.Description,
	}, true)
	if err != nil {
		return 0, err
	}

	for n, svc := range doc.Services {
		_, err := s.manager.saveService(op, system, types.ServiceRequest{
			Key:         svc.Key,
			ProviderKey: provider.Key,
			Name:        svc.Name,
			Description: svc.Description,
			CategoryURI: svc.CategoryURI,
			InputURIs:   svc.InputURIs,
			OutputURIs:  svc.OutputURIs,
		}, true)
		if err != nil {
			return n, fmt.Errorf("services[%d]: %w", n, err)
		}
	}
	return len(doc.Services), nil
}
