package model

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Plan は順番に実行する呼び出しの一覧
type Plan struct {
	// ContinueOnError が true なら失敗したステップの後も続行する
	ContinueOnError bool       `yaml:"continue_on_error" json:"continue_on_error"`
	Steps           []PlanStep `yaml:"steps" json:"steps"`
}

// PlanStep はプランの1ステップ
type PlanStep struct {
	Operation string        `yaml:"operation" json:"operation"`
	Args      []interface{} `yaml:"args" json:"args"`
	Value     string        `yaml:"value,omitempty" json:"value,omitempty"` // ETH単位 (例: "0.5")
}

// StepReport はステップごとの実行結果
type StepReport struct {
	Index     int         `json:"index"`
	Operation string      `json:"operation"`
	Result    *CallResult `json:"result,omitempty"`
	Err       error       `json:"-"`
	Error     string      `json:"error,omitempty"`
}

// PlanReport はプラン全体の実行結果
type PlanReport struct {
	Steps   []StepReport `json:"steps"`
	Aborted bool         `json:"aborted"`
}

// Failed は失敗したステップ数を返す
func (r *PlanReport) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// LoadPlan はYAMLのプランを読み込む
func LoadPlan(r io.Reader) (*Plan, error) {
	var plan Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	for i, step := range plan.Steps {
		if step.Operation == "" {
			return nil, fmt.Errorf("step %d: operation is required", i+1)
		}
	}
	return &plan, nil
}
