package learning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/facturalab/invoice-engine/internal/entity"
)

// artifactSchema constrains the on-disk pattern artifact. Validation failures
// degrade to an empty set rather than aborting a run.
const artifactSchema = `{
  "type": "object",
  "properties": {
    "regex_patterns": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "nlp_terms": {
      "type": "array",
      "items": {"type": "string"}
    },
    "item_patterns": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "additionalProperties": false
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("patterns.json", bytes.NewReader([]byte(artifactSchema))); err != nil {
		panic(err)
	}
	return compiler.MustCompile("patterns.json")
}

// PatternStore persists the learned-pattern artifact as a single JSON file.
// Each learning cycle rewrites the whole file; readers always see either the
// previous complete artifact or the new one.
type PatternStore struct {
	path   string
	logger *slog.Logger
}

func NewPatternStore(path string, logger *slog.Logger) *PatternStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PatternStore{path: path, logger: logger}
}

// Load reads the artifact. A missing, unreadable, malformed, or
// schema-invalid file degrades to the empty set; extraction then runs on
// base patterns alone.
func (s *PatternStore) Load() entity.LearnedPatternSet {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("pattern artifact unreadable, using empty set", "path", s.path, "error", err)
		}
		return entity.EmptyPatternSet()
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("pattern artifact corrupt, using empty set", "path", s.path, "error", err)
		return entity.EmptyPatternSet()
	}
	if err := compiledSchema.Validate(raw); err != nil {
		s.logger.Warn("pattern artifact does not match schema, using empty set", "path", s.path, "error", err)
		return entity.EmptyPatternSet()
	}

	var set entity.LearnedPatternSet
	if err := json.Unmarshal(data, &set); err != nil {
		s.logger.Warn("pattern artifact corrupt, using empty set", "path", s.path, "error", err)
		return entity.EmptyPatternSet()
	}
	if set.RegexPatterns == nil {
		set.RegexPatterns = map[string]string{}
	}
	if set.NLPTerms == nil {
		set.NLPTerms = []string{}
	}
	if set.ItemPatterns == nil {
		set.ItemPatterns = map[string]string{}
	}
	return set
}

// Save rewrites the artifact wholesale. The write goes to a temp file in the
// same directory followed by a rename, so a crash mid-write cannot leave a
// truncated artifact behind.
func (s *PatternStore) Save(set entity.LearnedPatternSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pattern artifact: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "patterns-*.json")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace pattern artifact: %w", err)
	}
	s.logger.Info("pattern artifact saved",
		"path", s.path,
		"regex_patterns", len(set.RegexPatterns),
		"nlp_terms", len(set.NLPTerms),
		"item_patterns", len(set.ItemPatterns))
	return nil
}
