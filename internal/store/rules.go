package store

import (
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/utils"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []ruleRecord `yaml:"rules"`
}

type ruleRecord struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name,omitempty"`
	Field     string `yaml:"field"`
	Relation  string `yaml:"relation"`
	Content   string `yaml:"content"`
	Regexp    bool   `yaml:"regexp,omitempty"`
	Enable    bool   `yaml:"enable"`
	PreFilter bool   `yaml:"pre-filter,omitempty"`
	Count     int64  `yaml:"count,omitempty"`
}

// YAMLRuleStore 屏蔽规则保存为 yaml 文件，可以手动编辑
type YAMLRuleStore struct {
	Path string
}

func NewYAMLRuleStore(path string) *YAMLRuleStore {
	return &YAMLRuleStore{Path: path}
}

// LoadRules 文件不存在时返回空列表
// 单条规则无法使用时仍然返回（禁用状态），错误通过 errors.Join 一并返回
func (s *YAMLRuleStore) LoadRules() ([]*danmaku.BlockRule, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]*danmaku.BlockRule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	rules := make([]*danmaku.BlockRule, 0, len(file.Rules))
	var errs []error
	for i, rec := range file.Rules {
		field, err := danmaku.ParseField(rec.Field)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule #%d: %w", i+1, err))
			continue
		}
		relation, err := danmaku.ParseRelation(rec.Relation)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule #%d: %w", i+1, err))
			continue
		}
		r, err := danmaku.NewBlockRule(rec.Content, field, relation, rec.Regexp)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule #%d: %w", i+1, err))
		} else {
			r.Enable = rec.Enable
		}
		r.ID = rec.ID
		r.Name = rec.Name
		r.UsePreFilter = rec.PreFilter
		r.RestoreCount(rec.Count)
		rules = append(rules, r)
	}
	if len(errs) > 0 {
		utils.WarnLog(storeC, "some block rules are invalid", "invalid", len(errs), "total", len(file.Rules))
	}
	return rules, errors.Join(errs...)
}

func (s *YAMLRuleStore) SaveRules(rules []*danmaku.BlockRule) error {
	file := ruleFile{Rules: make([]ruleRecord, 0, len(rules))}
	for _, r := range rules {
		file.Rules = append(file.Rules, ruleRecord{
			ID:        r.ID,
			Name:      r.Name,
			Field:     r.Field.String(),
			Relation:  r.Relation.String(),
			Content:   r.Content,
			Regexp:    r.IsRegExp,
			Enable:    r.Enable,
			PreFilter: r.UsePreFilter,
			Count:     r.BlockCount(),
		})
	}
	err := writeFile(s.Path, func(f *os.File) error {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(file); err != nil {
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return fmt.Errorf("save rules to %s: %w", s.Path, err)
	}
	utils.InfoLog(storeC, "block rules saved", "file", s.Path, "size", len(rules))
	return nil
}
