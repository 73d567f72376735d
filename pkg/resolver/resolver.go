// Package resolver maps proposal and file type names from requests to the
// absolute file paths that get watched.
//
// Files live at <root>/<proposal>/<file name>, where the file name comes
// from the configured file types (for example "context" -> "context.py").
//
// Example usage:
//
//	r, err := resolver.New(resolver.Config{
//	    Root:      "/srv/proposals",
//	    FileTypes: map[string]string{"context": "context.py"},
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	path, err := r.Resolve("p1", "context") // /srv/proposals/p1/context.py
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Logger defines the logging interface used by the resolver package.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Config contains resolver configuration.
type Config struct {
	// Root is the directory holding one subdirectory per proposal.
	Root string

	// FileTypes maps a file type name to its file name.
	FileTypes map[string]string
}

// Proposal describes one proposal directory under the root.
type Proposal struct {
	// Name is the proposal directory name.
	Name string `json:"name"`

	// Dir is the absolute proposal directory.
	Dir string `json:"dir"`

	// FileTypes lists the configured file types present in Dir, sorted.
	FileTypes []string `json:"file_types"`
}

// Resolver turns request parameters into watched file paths.
type Resolver interface {
	// Resolve returns the absolute path for proposal and fileType.
	//
	// Returns:
	//   - ErrMalformedRequest if proposal is not a single path segment
	//   - ErrUnknownFileType if fileType is not configured
	Resolve(proposal, fileType string) (string, error)

	// FileTypes returns the configured file type names, sorted.
	FileTypes() []string

	// Proposals scans the root for proposal directories.
	//
	// Directories without any configured file are still listed, with an
	// empty FileTypes.
	Proposals() ([]Proposal, error)
}

// resolver implements the Resolver interface.
type resolver struct {
	root      string
	fileTypes map[string]string
	logger    Logger
}

// New creates a Resolver. The root is made absolute.
//
// Parameters:
//   - cfg: Resolver configuration
//   - logger: Logger instance for diagnostic messages
func New(cfg Config, logger Logger) (Resolver, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, ErrInvalidRoot
	}

	root, err := filepath.Abs(expandHome(cfg.Root))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}

	fileTypes := make(map[string]string, len(cfg.FileTypes))
	for name, file := range cfg.FileTypes {
		if !validSegment(file) {
			return nil, fmt.Errorf("file type %q: invalid file name %q", name, file)
		}
		fileTypes[name] = file
	}

	return &resolver{
		root:      root,
		fileTypes: fileTypes,
		logger:    logger,
	}, nil
}

// Resolve implements Resolver.Resolve.
func (r *resolver) Resolve(proposal, fileType string) (string, error) {
	if !validSegment(proposal) {
		return "", fmt.Errorf("%w: proposal %q", ErrMalformedRequest, proposal)
	}

	file, ok := r.fileTypes[fileType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFileType, fileType)
	}

	return filepath.Join(r.root, proposal, file), nil
}

// FileTypes implements Resolver.FileTypes.
func (r *resolver) FileTypes() []string {
	names := make([]string, 0, len(r.fileTypes))
	for name := range r.fileTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Proposals implements Resolver.Proposals.
func (r *resolver) Proposals() ([]Proposal, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	proposals := make([]Proposal, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		dir := filepath.Join(r.root, entry.Name())
		present := make([]string, 0, len(r.fileTypes))
		for _, name := range r.FileTypes() {
			info, statErr := os.Stat(filepath.Join(dir, r.fileTypes[name]))
			if statErr != nil {
				if !os.IsNotExist(statErr) {
					r.logger.Warn("failed to stat proposal file",
						"proposal", entry.Name(),
						"file_type", name,
						"error", statErr)
				}
				continue
			}
			if info.Mode().IsRegular() {
				present = append(present, name)
			}
		}

		proposals = append(proposals, Proposal{
			Name:      entry.Name(),
			Dir:       dir,
			FileTypes: present,
		})
	}

	r.logger.Debug("scanned root directory",
		"root", r.root,
		"proposals_found", len(proposals))

	return proposals, nil
}

// validSegment reports whether s is usable as a single path element.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
