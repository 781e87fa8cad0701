package prompts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"newsgraph/internal/logging"
	"newsgraph/internal/services"
)

// Phase names resolved by the pipeline.
const (
	PhaseTriage      = "triage"
	PhaseLanguage    = "language"
	PhaseTranslation = "translation"
	PhaseExtraction  = "extraction"
	PhaseQuotes      = "quotes"
	PhaseRelations   = "relations"
)

//go:embed defaults.yaml
var defaultPrompts []byte

// Prompt is a system/user template pair for one phase.
type Prompt struct {
	Name        string `yaml:"-" json:"name"`
	Description string `yaml:"description" json:"description"`
	System      string `yaml:"system" json:"system"`
	User        string `yaml:"user" json:"user"`
	Source      string `yaml:"-" json:"source"`
}

type promptFile struct {
	Prompts map[string]Prompt `yaml:"prompts"`
}

// Render executes both templates against vars. Unknown keys are an error so a
// prompt referencing a variable the phase does not supply fails loudly.
func (p Prompt) Render(vars map[string]any) (string, string, error) {
	system, err := renderTemplate(p.Name+".system", p.System, vars)
	if err != nil {
		return "", "", err
	}
	user, err := renderTemplate(p.Name+".user", p.User, vars)
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}

func renderTemplate(name, text string, vars map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Store resolves prompts by phase name. Built-in prompts are embedded; an
// optional YAML file overrides or extends them and is re-read whenever its
// modification time changes.
type Store struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	builtin   map[string]Prompt
	overrides map[string]Prompt
	modTime   time.Time
	size      int64
	loadErr   error
}

// NewStore builds a store backed by path. An empty path uses only built-in prompts.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	builtin, err := parsePrompts(defaultPrompts, "builtin")
	if err != nil {
		return nil, fmt.Errorf("parse built-in prompts: %w", err)
	}
	return &Store{
		path:    strings.TrimSpace(path),
		logger:  logging.NewComponentLogger(logger, "prompts"),
		builtin: builtin,
	}, nil
}

// Resolve returns the prompt for phase, reloading the backing file first if it
// changed. A malformed file keeps the last good overrides; if none were ever
// loaded the invocation fails rather than silently using built-ins.
func (s *Store) Resolve(phase string) (Prompt, error) {
	phase = strings.TrimSpace(phase)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadLocked()

	if prompt, ok := s.overrides[phase]; ok {
		return prompt, nil
	}
	if s.loadErr != nil && s.overrides == nil {
		return Prompt{}, services.Wrap(services.ErrPromptMissing, "prompts", phase, "prompt file unusable", s.loadErr)
	}
	if prompt, ok := s.builtin[phase]; ok {
		return prompt, nil
	}
	return Prompt{}, services.Wrap(services.ErrPromptMissing, "prompts", phase, "no prompt defined", nil)
}

// Phases lists every phase name the store can currently resolve.
func (s *Store) Phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadLocked()
	seen := make(map[string]struct{}, len(s.builtin)+len(s.overrides))
	for name := range s.builtin {
		seen[name] = struct{}{}
	}
	for name := range s.overrides {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastError returns the most recent load failure, if any.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Path returns the override file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) reloadLocked() {
	if s.path == "" {
		return
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if s.overrides != nil {
				s.logger.Info("prompt file removed; using built-in prompts", logging.String("path", s.path))
			}
			s.overrides = nil
			s.loadErr = nil
			s.modTime = time.Time{}
			s.size = 0
			return
		}
		s.loadErr = err
		return
	}
	if info.ModTime().Equal(s.modTime) && info.Size() == s.size && (s.overrides != nil || s.loadErr != nil) {
		return
	}
	s.modTime = info.ModTime()
	s.size = info.Size()

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.loadErr = err
		return
	}
	parsed, err := parsePrompts(data, s.path)
	if err != nil {
		s.loadErr = err
		logging.WarnWithContext(s.logger, "prompt file rejected; keeping previous prompts", "prompt_reload_failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the YAML syntax or template expressions in the prompt file"),
			logging.String(logging.FieldImpact, "phases keep using the last good prompt set"),
		)
		return
	}
	s.overrides = parsed
	s.loadErr = nil
	s.logger.Info("prompt file loaded",
		logging.String(logging.FieldEventType, "prompt_reload"),
		logging.String("path", s.path),
		logging.Int("prompt_count", len(parsed)),
	)
}

func parsePrompts(data []byte, source string) (map[string]Prompt, error) {
	var file promptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	out := make(map[string]Prompt, len(file.Prompts))
	for name, prompt := range file.Prompts {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%s: prompt with empty name", source)
		}
		if strings.TrimSpace(prompt.User) == "" {
			return nil, fmt.Errorf("%s: prompt %q has no user template", source, name)
		}
		for _, text := range []string{prompt.System, prompt.User} {
			if _, err := template.New(name).Parse(text); err != nil {
				return nil, fmt.Errorf("%s: prompt %q: %w", source, name, err)
			}
		}
		prompt.Name = name
		prompt.Source = source
		out[name] = prompt
	}
	return out, nil
}
