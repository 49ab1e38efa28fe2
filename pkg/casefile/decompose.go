package casefile

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

//go:embed templates/decomposeParDict_*
var templates embed.FS

// 分解方法
const (
	MethodSimple       = "simple"
	MethodHierarchical = "hierarchical"
	MethodScotch       = "scotch"
	MethodManual       = "manual"
)

// Decomposition decomposeParDict 参数，字段是否使用取决于 Method
type Decomposition struct {
	Method           string
	Subdomains       string
	N                string
	Delta            string
	Order            string
	ProcessorWeights string
	Strategy         string
	DataFile         string
}

// placeholder 模板占位符
// optional 的占位符所在行在模板中被注释，值非空时去掉注释
type placeholder struct {
	token    string
	value    func(d *Decomposition) string
	optional bool
}

var (
	subdomains       = placeholder{token: "{number_of_subdomains}", value: func(d *Decomposition) string { return d.Subdomains }}
	coeffsN          = placeholder{token: "{coeffs_n}", value: func(d *Decomposition) string { return d.N }}
	coeffsDelta      = placeholder{token: "{coeffs_delta}", value: func(d *Decomposition) string { return d.Delta }}
	coeffsOrder      = placeholder{token: "{coeffs_order}", value: func(d *Decomposition) string { return d.Order }}
	coeffsDataFile   = placeholder{token: "{coeffs_datafile}", value: func(d *Decomposition) string { return d.DataFile }}
	processorWeights = placeholder{token: "{coeffs_processor_weights}", value: func(d *Decomposition) string { return d.ProcessorWeights }, optional: true}
	strategy         = placeholder{token: "{coeffs_strategy}", value: func(d *Decomposition) string { return d.Strategy }, optional: true}
)

var replacements = map[string][]placeholder{
	MethodSimple:       {subdomains, coeffsN, coeffsDelta},
	MethodHierarchical: {subdomains, coeffsN, coeffsDelta, coeffsOrder},
	MethodScotch:       {subdomains, processorWeights, strategy},
	MethodManual:       {subdomains, coeffsDataFile},
}

// RenderDecomposeParDict 渲染分解方法对应的 decomposeParDict
func RenderDecomposeParDict(d *Decomposition) ([]byte, error) {
	fields, ok := replacements[d.Method]
	if !ok {
		return nil, fmt.Errorf("unknown decomposition method %q", d.Method)
	}
	for _, p := range fields {
		if !p.optional && p.value(d) == "" {
			return nil, fmt.Errorf("decomposition %s: %s is required", d.Method, strings.Trim(p.token, "{}"))
		}
	}

	tmpl, err := templates.ReadFile("templates/decomposeParDict_" + d.Method)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", d.Method, err)
	}

	lines := strings.SplitAfter(string(tmpl), "\n")
	var b strings.Builder
	for _, line := range lines {
		for _, p := range fields {
			if !strings.Contains(line, p.token) {
				continue
			}
			value := p.value(d)
			line = strings.ReplaceAll(line, p.token, value)
			if p.optional && value != "" {
				line = strings.Replace(line, "//", "", 1)
			}
		}
		b.WriteString(line)
	}
	return []byte(b.String()), nil
}

// writeDecomposeParDict 未配置分解方式时使用 scotch，子域数等于并行度
func writeDecomposeParDict(caseDir string, d *Decomposition, parallelisation int) error {
	if d == nil {
		d = &Decomposition{Method: MethodScotch}
	}
	resolved := *d
	if resolved.Subdomains == "" {
		resolved.Subdomains = strconv.Itoa(parallelisation)
	}

	data, err := RenderDecomposeParDict(&resolved)
	if err != nil {
		return err
	}
	target := filepath.Join(caseDir, "system", "decomposeParDict")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create system directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write decomposeParDict: %w", err)
	}
	return nil
}
