package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/conveyor/internal/domain"
)

// Ошибки шаблонов.
var (
	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse error")

	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render error")
)

// Context — данные, доступные в шаблонах переопределений.
//
//	command: terraform workspace select {{ .Env }} && terraform apply
//	image: registry/{{ .Repo }}:{{ .SHA }}
type Context struct {
	Repo   string
	Owner  string
	Branch string
	SHA    string
	User   string

	// Environment — имя окружения как в flow.
	Environment string

	// Env — имя окружения в нижнем регистре.
	Env string
}

// NewContext создаёт контекст шаблонов для окружения.
func NewContext(info domain.DeploymentInfo, env string) *Context {
	return &Context{
		Repo:        info.GitRepo,
		Owner:       info.GitOwner,
		Branch:      info.GitBranch,
		SHA:         info.GitSHA1,
		User:        info.GitUser,
		Environment: env,
		Env:         strings.ToLower(env),
	}
}

var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — значение по умолчанию для пустой строки
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,

	// short — первые n символов (короткий SHA)
	"short": func(n int, s string) string {
		if len(s) <= n {
			return s
		}
		return s[:n]
	},
}

// Render рендерит строковый шаблон.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рекурсивно рендерит строки внутри map и slice.
func RenderValue(value any, ctx *Context) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil

	case string:
		return Render(v, ctx)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	default:
		// Числа и bool как есть
		return value, nil
	}
}

// RenderParams рендерит переопределения шага.
func RenderParams(params map[string]any, ctx *Context) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}

	rendered, err := RenderValue(params, ctx)
	if err != nil {
		return nil, err
	}

	result, ok := rendered.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrTemplateRender, rendered)
	}
	return result, nil
}
