package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// CouncilFile is the optional YAML override for the council roster.
//
//	council_models: [openai/gpt-5.1, x-ai/grok-4]
//	chairman_model: google/gemini-3-pro-preview
//	thinking:
//	  enabled: true
//	  stages: {stage1: false, stage2: true, stage3: true}
type CouncilFile struct {
	CouncilModels   []string      `yaml:"council_models"`
	ChairmanModel   string        `yaml:"chairman_model"`
	TitleModel      string        `yaml:"title_model"`
	ReasoningModels []string      `yaml:"reasoning_models"`
	Thinking        *ThinkingFile `yaml:"thinking"`
}

type ThinkingFile struct {
	Enabled *bool           `yaml:"enabled"`
	Stages  map[string]bool `yaml:"stages"`
}

// LoadCouncilFile reads path and overwrites only the fields it sets.
func LoadCouncilFile(path string, cfg *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file CouncilFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return err
	}

	file.apply(cfg)
	return nil
}

func (f *CouncilFile) apply(cfg *AppConfig) {
	if len(f.CouncilModels) > 0 {
		cfg.CouncilModels = f.CouncilModels
	}
	if f.ChairmanModel != "" {
		cfg.ChairmanModel = f.ChairmanModel
	}
	if f.TitleModel != "" {
		cfg.TitleModel = f.TitleModel
	}
	if len(f.ReasoningModels) > 0 {
		cfg.ReasoningModels = f.ReasoningModels
	}
	if f.Thinking == nil {
		return
	}
	if f.Thinking.Enabled != nil {
		cfg.ThinkingEnabled = *f.Thinking.Enabled
	}
	if v, ok := f.Thinking.Stages["stage1"]; ok {
		cfg.ThinkingStage1 = v
	}
	if v, ok := f.Thinking.Stages["stage2"]; ok {
		cfg.ThinkingStage2 = v
	}
	if v, ok := f.Thinking.Stages["stage3"]; ok {
		cfg.ThinkingStage3 = v
	}
}
