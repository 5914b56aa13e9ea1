package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ollagram/ollagram/internal/logger"
)

// Parser extracts tool calls from raw model output.
type Parser interface {
	Extract(text string) []ToolCall
}

// PrefixParser implements the marker protocol:
//
//	TOOL: get_weather
//	```json
//	{"latitude": 53.9, "longitude": 27.56}
//	```
type PrefixParser struct {
	prefix   string
	resolver Resolver
	logger   logger.Logger
}

func NewPrefixParser(prefix string, resolver Resolver, l logger.Logger) *PrefixParser {
	if l == nil {
		l = logger.Nop()
	}
	return &PrefixParser{prefix: prefix, resolver: resolver, logger: l}
}

func (p *PrefixParser) Prefix() string {
	return p.prefix
}

func (p *PrefixParser) Extract(text string) []ToolCall {
	if p.prefix == "" || !strings.Contains(text, p.prefix) {
		return nil
	}

	segments := strings.Split(text, p.prefix)[1:]
	calls := make([]ToolCall, 0, len(segments))
	for i, segment := range segments {
		call, err := parseSegment(segment)
		if err != nil {
			p.logger.WithFields(logger.Fields{
				"segment": i,
				"tool":    call.Name,
			}).WithError(err).Debug("Dropping malformed tool call")
			continue
		}
		if _, err := p.resolver.Resolve(call.Name); err != nil {
			p.logger.WithField("tool", call.Name).Debug("Dropping call to unknown tool")
			continue
		}
		calls = append(calls, call)
	}
	return calls
}

func parseSegment(segment string) (ToolCall, error) {
	segment = strings.TrimSpace(segment)
	name, rest, _ := strings.Cut(segment, "\n")
	name = strings.TrimSpace(name)
	// tolerate arguments written on the name line
	if n, inline, ok := strings.Cut(name, " "); ok {
		name, rest = n, inline+"\n"+rest
	}
	call := ToolCall{Name: name}
	if call.Name == "" {
		return call, fmt.Errorf("%w: missing tool name", ErrInvalidArguments)
	}

	args, err := decodeArguments(rest)
	if err != nil {
		return call, err
	}
	call.Arguments = args
	return call, nil
}

func decodeArguments(raw string) (Arguments, error) {
	candidate := unfence(raw)
	if candidate == "" {
		return Arguments{}, nil
	}

	// Decode only the first value so trailing chatter after the object is ignored.
	dec := json.NewDecoder(strings.NewReader(candidate))
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArguments, err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}
	return Arguments(obj), nil
}

// unfence returns the body of the first fenced block in s, or s itself when
// there is none. An unterminated fence runs to the end of s.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	// drop the info string, e.g. "json"
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(strings.TrimSpace(body), "json")
	}
	return strings.TrimSpace(body)
}
