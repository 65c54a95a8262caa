package settings

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Prompt is a named instruction template.
type Prompt struct {
	Name   string `yaml:"name" mapstructure:"name" json:"name"`
	Prompt string `yaml:"prompt" mapstructure:"prompt" json:"prompt"`
}

// DefaultPrompt is used when no valid prompt is configured.
var DefaultPrompt = Prompt{
	Name:   "Explain concept",
	Prompt: "Please, explain this concept to me:",
}

// NormalizePrompts trims entries and drops those missing a name or a prompt.
// It never returns an empty list.
func NormalizePrompts(in []Prompt) []Prompt {
	out := make([]Prompt, 0, len(in))
	for _, p := range in {
		p.Name = strings.TrimSpace(p.Name)
		p.Prompt = strings.TrimSpace(p.Prompt)
		if p.Name == "" || p.Prompt == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []Prompt{DefaultPrompt}
	}
	return out
}

// FindPrompt looks a prompt up by name, case-insensitively.
func FindPrompt(prompts []Prompt, name string) (Prompt, bool) {
	name = strings.TrimSpace(name)
	for _, p := range prompts {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Prompt{}, false
}

// LoadPromptsFile reads a YAML list of prompts.
func LoadPromptsFile(path string) ([]Prompt, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read prompts file %s", path)
	}
	var prompts []Prompt
	if err := yaml.Unmarshal(raw, &prompts); err != nil {
		return nil, errors.Wrapf(err, "parse prompts file %s", path)
	}
	return prompts, nil
}

// WritePromptsFile stores prompts as YAML.
func WritePromptsFile(path string, prompts []Prompt) error {
	raw, err := yaml.Marshal(prompts)
	if err != nil {
		return errors.Wrap(err, "marshal prompts")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write prompts file %s", path)
	}
	return nil
}

// UpsertPromptsFile adds p to the prompts file at path, replacing a prompt with
// the same name. A missing file is created. It returns the stored list.
func UpsertPromptsFile(path string, p Prompt) ([]Prompt, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.Name == "" || p.Prompt == "" {
		return nil, errors.New("prompt needs a name and a text")
	}
	var prompts []Prompt
	if _, err := os.Stat(path); err == nil {
		prompts, err = LoadPromptsFile(path)
		if err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat prompts file %s", path)
	}

	replaced := false
	for i := range prompts {
		if strings.EqualFold(prompts[i].Name, p.Name) {
			prompts[i] = p
			replaced = true
		}
	}
	if !replaced {
		prompts = append(prompts, p)
	}
	if err := WritePromptsFile(path, prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}
