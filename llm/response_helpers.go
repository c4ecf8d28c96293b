package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON 从模型输出中提取 JSON：依次尝试 markdown 代码块、整段解析、
// 括号配对扫描（考虑字符串与转义），全部失败时原样返回交由调用方报错。
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "{}"
	}

	// 1. markdown 代码块 ```json ... ```
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}

	// 2. 整段即合法 JSON
	if json.Valid([]byte(text)) {
		return text
	}

	// 3. 括号配对扫描，提取第一个完整对象
	if start := strings.IndexByte(text, '{'); start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			ch := text[i]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case ch == '\\' && inString:
				escaped = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == '{':
				depth++
			case ch == '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate
					}
					return text
				}
			}
		}
	}

	// 4. 兜底：原样返回，由调用方的 json.Unmarshal 报错
	return text
}

// EscapeBraces 转义会被提示词模板层误解的花括号。
// 注入到指令里的自由文本（站点名、历史输出、错误文本、对话历史）都要先过这一层。
func EscapeBraces(s string) string {
	s = strings.ReplaceAll(s, "{", "{{")
	return strings.ReplaceAll(s, "}", "}}")
}
