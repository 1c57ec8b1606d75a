package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ClassicSystemPrompt は classic プロファイルのシステム指示
const ClassicSystemPrompt = "You answer questions about the book \"Wardley Maps\" by Simon Wardley."

// AnalystSystemPrompt は mmr プロファイルのシステム指示
const AnalystSystemPrompt = `As a chatbot, analyze the provided book on Wardley Mapping and offer insights and recommendations.
Suggestions:
Explain the analysis process for a Wardley Map
Discuss the key insights derived from the book
Provide recommendations based on the analysis`

// ErrUnknownProfile は存在しないプロファイルを指定した場合のエラー
var ErrUnknownProfile = errors.New("unknown profile")

// Profile は ChatConfig に上書きする設定の組
// nil のフィールドは上書きしない
type Profile struct {
	Name             string         `yaml:"-"`
	Description      string         `yaml:"description"`
	Model            *string        `yaml:"model"`
	Temperature      *float64       `yaml:"temperature"`
	MaxTokens        *int           `yaml:"max_tokens"`
	MemoryWindow     *int           `yaml:"memory_window"`
	RetrievalK       *int           `yaml:"k"`
	FetchK           *int           `yaml:"fetch_k"`
	SearchMode       *string        `yaml:"search_mode"`
	Lambda           *float64       `yaml:"lambda"`
	Rephrase         *bool          `yaml:"rephrase"`
	RephraseModel    *string        `yaml:"rephrase_model"`
	MaxContextTokens *int           `yaml:"max_context_tokens"`
	Truncation       *string        `yaml:"truncation"`
	SystemPrompt     *string        `yaml:"system_prompt"`
	RequestTimeout   *time.Duration `yaml:"request_timeout"`
	MaxRetries       *int           `yaml:"max_retries"`
	RecordEmptyTurns *bool          `yaml:"record_empty_turns"`
}

// profileFile は YAML ファイルのトップレベル構造
type profileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// BuiltinProfiles は常に利用可能なプロファイルを返す
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		"classic": {
			Name:         "classic",
			Description:  "gpt-4, top-4 similarity search, short answers with SOURCES",
			Model:        ptr("gpt-4"),
			Temperature:  ptr(0.0),
			MaxTokens:    ptr(256),
			RetrievalK:   ptr(4),
			SearchMode:   ptr("similarity"),
			SystemPrompt: ptr(ClassicSystemPrompt),
		},
		"mmr": {
			Name:         "mmr",
			Description:  "gpt-3.5-turbo-16k, 5 diverse passages via MMR, analyst tone",
			Model:        ptr("gpt-3.5-turbo-16k-0613"),
			Temperature:  ptr(0.0),
			MaxTokens:    ptr(1000),
			RetrievalK:   ptr(5),
			SearchMode:   ptr("mmr"),
			SystemPrompt: ptr(AnalystSystemPrompt),
		},
	}
}

// LoadProfiles は組み込みプロファイルに YAML ファイルの定義を重ねて返す
// path が空の場合は組み込みプロファイルのみを返す
func LoadProfiles(path string) (map[string]Profile, error) {
	profiles := BuiltinProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profile file: %w", err)
	}

	for name, p := range file.Profiles {
		p.Name = name
		profiles[name] = p
	}

	return profiles, nil
}

// SortedProfiles はプロファイルを名前順に並べて返す
func SortedProfiles(profiles map[string]Profile) []Profile {
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Apply はプロファイルの値を ChatConfig に上書きした結果を返す
func (p Profile) Apply(c ChatConfig) ChatConfig {
	set(&c.Model, p.Model)
	set(&c.Temperature, p.Temperature)
	set(&c.MaxTokens, p.MaxTokens)
	set(&c.MemoryWindow, p.MemoryWindow)
	set(&c.RetrievalK, p.RetrievalK)
	set(&c.FetchK, p.FetchK)
	set(&c.SearchMode, p.SearchMode)
	set(&c.Lambda, p.Lambda)
	set(&c.Rephrase, p.Rephrase)
	set(&c.RephraseModel, p.RephraseModel)
	set(&c.MaxContextTokens, p.MaxContextTokens)
	set(&c.Truncation, p.Truncation)
	set(&c.SystemPrompt, p.SystemPrompt)
	set(&c.RequestTimeout, p.RequestTimeout)
	set(&c.MaxRetries, p.MaxRetries)
	set(&c.RecordEmptyTurns, p.RecordEmptyTurns)
	return c
}

// ApplyProfile は名前で指定したプロファイルを Chat 設定に適用する
// 空の名前の場合は何もしない
func (c *Config) ApplyProfile(name string, profiles map[string]Profile) error {
	if name == "" {
		return nil
	}
	p, ok := profiles[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	c.Chat = p.Apply(c.Chat)
	c.Profile = name
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func ptr[T any](v T) *T {
	return &v
}
